package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "go-best-shot/internal/errors"
)

// FileAssetSource reads previews from <dir>/<assetID>
type FileAssetSource struct {
	dir      string
	maxBytes int64
}

func NewFileAssetSource(dir string, maxBytes int64) *FileAssetSource {
	if maxBytes <= 0 {
		maxBytes = defaultMaxPreviewBytes
	}
	return &FileAssetSource{dir: dir, maxBytes: maxBytes}
}

// FetchPreview implements resolver.AssetSource
func (s *FileAssetSource) FetchPreview(ctx context.Context, assetID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailableInput, err)
	}
	// Asset IDs are names, not paths
	if assetID == "" || strings.ContainsAny(assetID, `/\`) || assetID == "." || assetID == ".." {
		return nil, fmt.Errorf("%w: invalid asset id %q", apperrors.ErrUnavailableInput, assetID)
	}

	f, err := os.Open(filepath.Join(s.dir, assetID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: asset %s not found", apperrors.ErrUnavailableInput, assetID)
		}
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailableInput, err)
	}
	defer f.Close()

	body, _, err := readBounded(f, s.maxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: asset %s: %v", apperrors.ErrUnavailableInput, assetID, err)
	}
	return body, nil
}
