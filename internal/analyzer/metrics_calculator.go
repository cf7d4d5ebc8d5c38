package analyzer

import (
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	// log10(1+variance) is divided by this to land sharp photos near 0.6-0.9
	sharpnessLogDivisor = 5.0

	exposureTarget   = 130.0
	exposureMeanPart = 0.6
	exposureClipPart = 0.4
	clipLow          = 3
	clipHigh         = 252
	clipPenalty      = 5.0

	// A uniformly lit frame puts ~1/9 of its energy in the center cell.
	compositionFloor   = 0.11
	compositionCeiling = 0.35
	compositionNeutral = 0.5

	// Maps smaller than this are summed on the calling goroutine.
	parallelThreshold = 100000
)

// metricsCalculator implements MetricsCalculator with Gonum statistics
type metricsCalculator struct {
	slicePool sync.Pool
}

// NewMetricsCalculator creates a new metrics calculator using Gonum
func NewMetricsCalculator() MetricsCalculator {
	return &metricsCalculator{
		slicePool: sync.Pool{
			New: func() interface{} {
				return make([]float64, 0, 1024)
			},
		},
	}
}

// Analyze runs the sharpness, exposure and composition analyzers
func (mc *metricsCalculator) Analyze(lum LuminanceMap) Metrics {
	variance := mc.LaplacianVariance(lum)
	return Metrics{
		LaplacianVariance: variance,
		Sharpness:         NormalizeSharpness(variance),
		Exposure:          mc.Exposure(lum),
		Composition:       mc.Composition(lum),
	}
}

// LaplacianVariance computes the sample variance (n-1) of the 3x3 Laplacian
// response over interior pixels. Returns 0 when it is undefined.
func (mc *metricsCalculator) LaplacianVariance(lum LuminanceMap) float64 {
	width, height := lum.Width, lum.Height
	if width < 3 || height < 3 {
		return 0
	}
	n := (width - 2) * (height - 2)
	if n < 2 {
		return 0
	}

	// Get reusable slice from pool
	data := mc.slicePool.Get().([]float64)
	defer func() { mc.slicePool.Put(data[:0]) }()

	if cap(data) < n {
		data = make([]float64, 0, n)
	}

	// Laplacian kernel: [0, 1, 0; 1, -4, 1; 0, 1, 0]
	for y := 1; y < height-1; y++ {
		row := y * width
		for x := 1; x < width-1; x++ {
			i := row + x
			center := int(lum.Pix[i])
			top := int(lum.Pix[i-width])
			bottom := int(lum.Pix[i+width])
			left := int(lum.Pix[i-1])
			right := int(lum.Pix[i+1])

			data = append(data, float64(top+bottom+left+right-4*center))
		}
	}

	return stat.Variance(data, nil)
}

// Sharpness returns the normalized Laplacian variance in [0, 1]
func (mc *metricsCalculator) Sharpness(lum LuminanceMap) float64 {
	return NormalizeSharpness(mc.LaplacianVariance(lum))
}

// NormalizeSharpness compresses a raw Laplacian variance into [0, 1]
func NormalizeSharpness(variance float64) float64 {
	if variance <= 0 || math.IsNaN(variance) {
		return 0
	}
	return clamp01(math.Log10(1+variance) / sharpnessLogDivisor)
}

// Exposure scores mean brightness against the target and penalizes clipping
func (mc *metricsCalculator) Exposure(lum LuminanceMap) float64 {
	total := len(lum.Pix)
	if total == 0 {
		return 0
	}

	h := mc.histogram(lum)

	var sum, dark, bright uint64
	for v, count := range h {
		sum += uint64(v) * count
		if v <= clipLow {
			dark += count
		}
		if v >= clipHigh {
			bright += count
		}
	}

	mean := float64(sum) / float64(total)
	clipFrac := float64(dark+bright) / float64(total)

	meanTerm := math.Max(0, 1-math.Abs(mean-exposureTarget)/exposureTarget)
	clipTerm := 1 - clamp01(clipFrac*clipPenalty)
	return clamp01(exposureMeanPart*meanTerm + exposureClipPart*clipTerm)
}

// Composition measures how much luminance energy sits in the center cell of
// a 3x3 grid. The last row and column absorb any remainder.
func (mc *metricsCalculator) Composition(lum LuminanceMap) float64 {
	width, height := lum.Width, lum.Height
	if width < 3 || height < 3 {
		return compositionNeutral
	}

	cellW, cellH := width/3, height/3

	var total, center uint64
	for y := 0; y < height; y++ {
		inRow := y >= cellH && y < 2*cellH
		row := lum.Pix[y*width : (y+1)*width]
		for x, v := range row {
			total += uint64(v)
			if inRow && x >= cellW && x < 2*cellW {
				center += uint64(v)
			}
		}
	}

	if total == 0 {
		return compositionNeutral
	}

	centerFrac := float64(center) / float64(total)
	return clamp01((centerFrac - compositionFloor) / (compositionCeiling - compositionFloor))
}

// histogram counts luminance values, splitting large maps into strips
func (mc *metricsCalculator) histogram(lum LuminanceMap) [256]uint64 {
	var h [256]uint64
	if len(lum.Pix) < parallelThreshold {
		for _, v := range lum.Pix {
			h[v]++
		}
		return h
	}

	numWorkers := runtime.NumCPU()
	if lum.Height < numWorkers {
		numWorkers = lum.Height
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	rowsPerWorker := (lum.Height + numWorkers - 1) / numWorkers // ceil division

	results := make(chan [256]uint64, numWorkers)
	var wg sync.WaitGroup

	// Process image in horizontal strips for better cache locality
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if endY > lum.Height {
			endY = lum.Height
		}
		if startY >= endY {
			continue
		}
		wg.Add(1)
		go func(strip []byte) {
			defer wg.Done()
			var local [256]uint64
			for _, v := range strip {
				local[v]++
			}
			results <- local
		}(lum.Pix[startY*lum.Width : endY*lum.Width])
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for local := range results {
		for v, count := range local {
			h[v] += count
		}
	}
	return h
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
