package scoring

import (
	"math"
	"strings"
)

const (
	faceSaturation = 3.0
	positiveBoost  = 0.7
	negativeBoost  = 0.6
)

var (
	positiveTags = map[string]struct{}{
		"person":   {},
		"people":   {},
		"portrait": {},
		"family":   {},
		"selfie":   {},
	}
	negativeTags = map[string]struct{}{
		"screenshot": {},
		"document":   {},
		"whiteboard": {},
		"qr":         {},
		"barcode":    {},
	}
)

// Metadata carries the optional semantic hints for one asset. A nil
// FaceCount means no face signal; HasTags false means no tag signal, which is
// different from an empty tag list.
type Metadata struct {
	FaceCount *int     `json:"face_count,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	HasTags   bool     `json:"has_tags"`
}

// NewMetadata builds metadata with both signals present
func NewMetadata(faces int, tags []string) Metadata {
	return Metadata{FaceCount: &faces, Tags: tags, HasTags: true}
}

// MetadataScores holds the two metadata-derived component scores
type MetadataScores struct {
	Face float64 `json:"face"`
	Tags float64 `json:"tags"`
}

// ScoreMetadata maps metadata onto face and tag scores in [0, 1]
func ScoreMetadata(meta Metadata) MetadataScores {
	var out MetadataScores
	if meta.FaceCount != nil {
		out.Face = FaceScore(*meta.FaceCount)
	}
	if meta.HasTags {
		out.Tags = TagScore(meta.Tags)
	}
	return out
}

// FaceScore gives diminishing returns past three detected faces
func FaceScore(count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Min(1, float64(count)/faceSaturation)
}

// TagScore applies one positive and one negative boost at most, then maps
// the boost from [-1, 1] onto [0, 1].
func TagScore(tags []string) float64 {
	var positive, negative bool
	for _, tag := range tags {
		t := strings.ToLower(strings.TrimSpace(tag))
		if _, ok := positiveTags[t]; ok {
			positive = true
		}
		if _, ok := negativeTags[t]; ok {
			negative = true
		}
	}

	boost := 0.0
	if positive {
		boost += positiveBoost
	}
	if negative {
		boost -= negativeBoost
	}
	boost = math.Max(-1, math.Min(1, boost))
	return (boost + 1) / 2
}
