package analyzer

import (
	"fmt"
	"image"
	"image/draw"

	apperrors "go-best-shot/internal/errors"
)

// PixelBuffer is a decoded RGBA image with channels interleaved per pixel.
// Len(Pix) must equal Width*Height*4.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// LuminanceMap is a single-channel 8-bit brightness map with the same
// dimensions as the PixelBuffer it was derived from.
type LuminanceMap struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer creates a validated pixel buffer
func NewPixelBuffer(width, height int, pix []byte) (PixelBuffer, error) {
	buf := PixelBuffer{Width: width, Height: height, Pix: pix}
	if err := buf.Validate(); err != nil {
		return PixelBuffer{}, err
	}
	return buf, nil
}

// Validate checks the structural invariant of the buffer
func (b PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", apperrors.ErrInvalidBuffer, b.Width, b.Height)
	}
	if want := b.Width * b.Height * 4; len(b.Pix) != want {
		return fmt.Errorf("%w: length %d, want %d for %dx%d",
			apperrors.ErrInvalidBuffer, len(b.Pix), want, b.Width, b.Height)
	}
	return nil
}

// At returns the luminance value at x, y
func (m LuminanceMap) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

// FromImage converts any decoded image into a non-premultiplied RGBA buffer.
func FromImage(img image.Image) PixelBuffer {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Stride == width*4 && bounds.Min == (image.Point{}) {
		pix := make([]byte, len(nrgba.Pix[:width*height*4]))
		copy(pix, nrgba.Pix)
		return PixelBuffer{Width: width, Height: height, Pix: pix}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)
	return PixelBuffer{Width: width, Height: height, Pix: dst.Pix}
}
