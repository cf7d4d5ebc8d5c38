package analyzer

// Metrics holds the image-derived signals for one asset
type Metrics struct {
	LaplacianVariance float64 `json:"laplacian_variance"`
	Sharpness         float64 `json:"sharpness"`
	Exposure          float64 `json:"exposure"`
	Composition       float64 `json:"composition"`
}
