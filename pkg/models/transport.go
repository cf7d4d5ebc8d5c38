package models

// ResolveRequest asks for the winner of one ad-hoc duplicate group
type ResolveRequest struct {
	GroupID  string   `json:"group_id"`
	AssetIDs []string `json:"asset_ids" binding:"required,min=1"`
}

// RunRequest starts a resolution run. Omitted fields use the configured
// effects settings.
type RunRequest struct {
	Mode   string `json:"mode,omitempty"`
	DryRun *bool  `json:"dry_run,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Type      string `json:"type,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ScoreResponse is the score of one uploaded or fetched image
type ScoreResponse struct {
	AssetID           string         `json:"asset_id,omitempty"`
	Total             float64        `json:"total"`
	Breakdown         ScoreBreakdown `json:"breakdown"`
	Timestamp         string         `json:"timestamp,omitempty"`
	ProcessingTimeSec float64        `json:"processing_time_sec,omitempty"`
}

// ScoreBreakdown lists the components behind a total
type ScoreBreakdown struct {
	Sharpness         float64 `json:"sharpness"`
	Exposure          float64 `json:"exposure"`
	Composition       float64 `json:"composition"`
	ExposureComposite float64 `json:"exposure_composite"`
	Face              float64 `json:"face"`
	Tags              float64 `json:"tags"`
	LaplacianVariance float64 `json:"laplacian_variance"`
	MetadataMissing   bool    `json:"metadata_missing"`
	Reason            string  `json:"reason,omitempty"`
}

// ResolveResponse is the outcome of resolving one group
type ResolveResponse struct {
	GroupID           string          `json:"group_id"`
	Winner            string          `json:"winner"`
	Alternates        []string        `json:"alternates"`
	Degraded          bool            `json:"degraded"`
	Scores            []ScoreResponse `json:"scores"`
	Timestamp         string          `json:"timestamp"`
	ProcessingTimeSec float64         `json:"processing_time_sec"`
}
