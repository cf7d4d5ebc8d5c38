package repository

import (
	"context"
	"time"

	"go-best-shot/internal/resolver"
	"go-best-shot/internal/scoring"
)

// GroupRepository stores duplicate groups imported from an upstream grouper
type GroupRepository interface {
	resolver.GroupSource

	// SaveGroups inserts or replaces groups, keeping member order
	SaveGroups(ctx context.Context, groups []resolver.DuplicateGroup) error

	// GetGroup returns one stored group
	GetGroup(ctx context.Context, id string) (resolver.DuplicateGroup, error)

	// RecordRun appends a run summary to the run history
	RecordRun(ctx context.Context, run RunRecord) error

	Close() error
}

// MetadataRepository serves per-asset metadata from a local store
type MetadataRepository interface {
	resolver.MetadataSource

	// Len returns the number of assets with metadata
	Len() int
}

// RunRecord is the bookkeeping row of one resolution run. It carries counts
// only; per-asset scores are never stored.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Groups     int
	Degraded   int
	Actions    int
	DryRun     bool
	Mode       string
}

// staticEntry is the JSON shape of one asset in a metadata sidecar
type staticEntry struct {
	Faces *int      `json:"faces"`
	Tags  *[]string `json:"tags"`
}

func (e staticEntry) metadata() scoring.Metadata {
	meta := scoring.Metadata{FaceCount: e.Faces}
	if e.Tags != nil {
		meta.HasTags = true
		meta.Tags = *e.Tags
	}
	return meta
}
