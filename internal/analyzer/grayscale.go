package analyzer

import "math"

// BT.601 luma weights
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// ToLuminance reduces an RGBA buffer to a luminance map. Alpha is ignored.
func ToLuminance(buf PixelBuffer) (LuminanceMap, error) {
	if err := buf.Validate(); err != nil {
		return LuminanceMap{}, err
	}

	pix := make([]byte, buf.Width*buf.Height)
	for i := range pix {
		p := buf.Pix[i*4 : i*4+4 : i*4+4]
		y := lumaR*float64(p[0]) + lumaG*float64(p[1]) + lumaB*float64(p[2])
		pix[i] = uint8(math.Min(255, math.Round(y)))
	}

	return LuminanceMap{Width: buf.Width, Height: buf.Height, Pix: pix}, nil
}
