package analyzer

// MetricsCalculator computes the low-level quality metrics of a luminance map.
// All scores are in [0, 1].
type MetricsCalculator interface {
	Analyze(lum LuminanceMap) Metrics
	LaplacianVariance(lum LuminanceMap) float64
	Sharpness(lum LuminanceMap) float64
	Exposure(lum LuminanceMap) float64
	Composition(lum LuminanceMap) float64
}
