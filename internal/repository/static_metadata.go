package repository

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/scoring"
)

// StaticMetadataRepository serves metadata from a JSON sidecar of the form
// {"<assetID>": {"faces": 2, "tags": ["portrait"]}}. Omitted keys stay absent.
type StaticMetadataRepository struct {
	entries map[string]scoring.Metadata
}

// LoadStaticMetadata reads a sidecar file
func LoadStaticMetadata(path string) (*StaticMetadataRepository, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	return ParseStaticMetadata(data)
}

// ParseStaticMetadata parses sidecar contents
func ParseStaticMetadata(data []byte) (*StaticMetadataRepository, error) {
	var raw map[string]staticEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.NewValidationError("invalid metadata file", err)
	}

	entries := make(map[string]scoring.Metadata, len(raw))
	for id, e := range raw {
		entries[id] = e.metadata()
	}
	return &StaticMetadataRepository{entries: entries}, nil
}

// FetchMetadata implements resolver.MetadataSource
func (r *StaticMetadataRepository) FetchMetadata(_ context.Context, assetID string) (scoring.Metadata, error) {
	meta, ok := r.entries[assetID]
	if !ok {
		return scoring.Metadata{}, fmt.Errorf("%w: asset %s", apperrors.ErrMetadataUnavailable, assetID)
	}
	return meta, nil
}

// Len implements MetadataRepository
func (r *StaticMetadataRepository) Len() int {
	return len(r.entries)
}
