// Package scoring maps per-asset signals to bounded component scores and
// blends them into a single composite total.
package scoring

import (
	"fmt"
	"math"
)

// ScoreWeights is the four-slot weight vector of the blend. It is a weighted
// sum, not an average: weights need not add up to 1.
type ScoreWeights struct {
	Sharpness float64 `json:"sharpness" koanf:"sharpness"`
	Exposure  float64 `json:"exposure" koanf:"exposure"`
	Face      float64 `json:"face" koanf:"face"`
	Tags      float64 `json:"tags" koanf:"tags"`
}

// DefaultWeights returns the default weight vector
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Sharpness: 0.45,
		Exposure:  0.25,
		Face:      0.20,
		Tags:      0.10,
	}
}

// Validate rejects negative or non-finite weights
func (w ScoreWeights) Validate() error {
	for name, v := range map[string]float64{
		"sharpness": w.Sharpness,
		"exposure":  w.Exposure,
		"face":      w.Face,
		"tags":      w.Tags,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("weight %s must be finite (got %v)", name, v)
		}
		if v < 0 {
			return fmt.Errorf("weight %s must be >= 0 (got %v)", name, v)
		}
	}
	return nil
}

// Sum returns the maximum total a fully scored asset can reach
func (w ScoreWeights) Sum() float64 {
	return w.Sharpness + w.Exposure + w.Face + w.Tags
}
