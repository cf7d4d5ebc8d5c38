// Package decoder turns compressed preview bytes into RGBA pixel buffers.
package decoder

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go-best-shot/internal/analyzer"
	apperrors "go-best-shot/internal/errors"
)

// Decoder decodes compressed image bytes into a pixel buffer
type Decoder interface {
	Decode(data []byte) (analyzer.PixelBuffer, error)
}

type imageDecoder struct {
	maxPixels int
}

// NewImageDecoder creates a decoder for JPEG, PNG, GIF, WebP, BMP and TIFF.
// maxPixels <= 0 disables the size guard.
func NewImageDecoder(maxPixels int) Decoder {
	return &imageDecoder{maxPixels: maxPixels}
}

// Decode decodes data. Any failure wraps ErrDecodeFailure.
func (d *imageDecoder) Decode(data []byte) (analyzer.PixelBuffer, error) {
	if len(data) == 0 {
		return analyzer.PixelBuffer{}, fmt.Errorf("%w: empty input", apperrors.ErrDecodeFailure)
	}

	if d.maxPixels > 0 {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return analyzer.PixelBuffer{}, fmt.Errorf("%w: %v", apperrors.ErrDecodeFailure, err)
		}
		if cfg.Width*cfg.Height > d.maxPixels {
			return analyzer.PixelBuffer{}, fmt.Errorf("%w: %dx%d exceeds %d pixels",
				apperrors.ErrDecodeFailure, cfg.Width, cfg.Height, d.maxPixels)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return analyzer.PixelBuffer{}, fmt.Errorf("%w: %v", apperrors.ErrDecodeFailure, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return analyzer.PixelBuffer{}, fmt.Errorf("%w: zero-size image", apperrors.ErrDecodeFailure)
	}

	return analyzer.FromImage(img), nil
}
