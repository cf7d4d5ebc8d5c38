package resolver

import (
	"context"

	"go-best-shot/internal/scoring"
)

// AssetSource returns compressed preview bytes for an asset. Implementations
// return an error wrapping errors.ErrUnavailableInput when there is no preview.
type AssetSource interface {
	FetchPreview(ctx context.Context, assetID string) ([]byte, error)
}

// MetadataSource returns optional scene hints for an asset
type MetadataSource interface {
	FetchMetadata(ctx context.Context, assetID string) (scoring.Metadata, error)
}

// GroupSource enumerates duplicate groups
type GroupSource interface {
	ListGroups(ctx context.Context) ([]DuplicateGroup, error)
}
