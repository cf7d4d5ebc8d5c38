package scoring

import "math"

const (
	exposureFold    = 0.75
	compositionFold = 0.25
)

// Components are the normalized inputs of the blend, each in [0, 1]
type Components struct {
	Sharpness   float64
	Exposure    float64
	Composition float64
	Face        float64
	Tags        float64
}

// Blend is the outcome of one weighted blend
type Blend struct {
	ExposureComposite float64
	Total             float64
}

// Blender combines component scores with a fixed weight vector
type Blender struct {
	weights ScoreWeights
}

// NewBlender creates a blender for the given weights
func NewBlender(weights ScoreWeights) *Blender {
	return &Blender{weights: weights}
}

// Weights returns the weight vector the blender was built with
func (b *Blender) Weights() ScoreWeights {
	return b.weights
}

// Blend folds composition into the exposure channel, then takes the
// weighted sum of the four channels. The weights are not normalized.
func (b *Blender) Blend(c Components) Blend {
	composite := ExposureComposite(c.Exposure, c.Composition)
	total := b.weights.Sharpness*c.Sharpness +
		b.weights.Exposure*composite +
		b.weights.Face*c.Face +
		b.weights.Tags*c.Tags
	return Blend{ExposureComposite: composite, Total: total}
}

// ExposureComposite is 0.75*exposure + 0.25*composition, clamped to [0, 1]
func ExposureComposite(exposure, composition float64) float64 {
	v := exposureFold*exposure + compositionFold*composition
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
