package resolver

import "strings"

// FailureReason records why an asset could not be scored
type FailureReason string

const (
	ReasonNone          FailureReason = ""
	ReasonNoPreview     FailureReason = "no_preview"
	ReasonDecodeFailed  FailureReason = "decode_failed"
	ReasonInvalidBuffer FailureReason = "invalid_buffer"
)

// DuplicateGroup is a set of asset IDs judged to show the same scene
type DuplicateGroup struct {
	ID       string   `json:"id"`
	AssetIDs []string `json:"asset_ids"`
}

// Normalize drops blank and repeated IDs, keeping first occurrences in order
func (g DuplicateGroup) Normalize() DuplicateGroup {
	seen := make(map[string]struct{}, len(g.AssetIDs))
	ids := make([]string, 0, len(g.AssetIDs))
	for _, id := range g.AssetIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return DuplicateGroup{ID: g.ID, AssetIDs: ids}
}

// Breakdown keeps the component values behind a total for auditing
type Breakdown struct {
	Sharpness         float64       `json:"sharpness"`
	Exposure          float64       `json:"exposure"`
	Composition       float64       `json:"composition"`
	ExposureComposite float64       `json:"exposure_composite"`
	Face              float64       `json:"face"`
	Tags              float64       `json:"tags"`
	LaplacianVariance float64       `json:"laplacian_variance"`
	MetadataMissing   bool          `json:"metadata_missing,omitempty"`
	Reason            FailureReason `json:"reason,omitempty"`
}

// AssetScore is the immutable scoring record of one asset in one pass
type AssetScore struct {
	AssetID   string    `json:"asset_id"`
	Total     float64   `json:"total"`
	Breakdown Breakdown `json:"breakdown"`
}

// Failed reports whether the asset was scored 0 because of missing input
func (s AssetScore) Failed() bool {
	return s.Breakdown.Reason != ReasonNone
}

func failedScore(assetID string, reason FailureReason) AssetScore {
	return AssetScore{AssetID: assetID, Breakdown: Breakdown{Reason: reason}}
}

// ResolutionResult is the winner/alternates split of one group. Scores are
// in rank order.
type ResolutionResult struct {
	GroupID    string       `json:"group_id"`
	Winner     string       `json:"winner"`
	Alternates []string     `json:"alternates"`
	Scores     []AssetScore `json:"scores"`

	// Degraded is set when every member scored 0. The winner is then only
	// the first asset in enumeration order.
	Degraded bool `json:"degraded"`
}
