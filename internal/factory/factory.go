package factory

import (
	"errors"
	"fmt"

	"go-best-shot/internal/config"
	"go-best-shot/internal/decoder"
	"go-best-shot/internal/effects"
	"go-best-shot/internal/photoapi"
	"go-best-shot/internal/repository"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/storage"
)

// AssetSourceType represents different backends for preview bytes
type AssetSourceType string

const (
	// PhotoAPIAssets fetches previews from the photo service
	PhotoAPIAssets AssetSourceType = "photoapi"
	// HTTPAssets fetches previews from a plain HTTP server
	HTTPAssets AssetSourceType = "http"
	// AzureAssets reads previews from Azure blob storage
	AzureAssets AssetSourceType = "azure"
	// FileAssets reads previews from a local directory
	FileAssets AssetSourceType = "file"
)

// MetadataSourceType represents different backends for scene hints
type MetadataSourceType string

const (
	PhotoAPIMetadata MetadataSourceType = "photoapi"
	StaticMetadata   MetadataSourceType = "static"
	NoMetadata       MetadataSourceType = "none"
)

// GroupSourceType represents different backends for duplicate groups
type GroupSourceType string

const (
	PhotoAPIGroups GroupSourceType = "photoapi"
	SQLiteGroups   GroupSourceType = "sqlite"
)

// ComponentFactory builds sources, the resolver and the effects pipeline
// from configuration. The photo service client and the SQLite repository are
// created once and shared between the components that need them.
type ComponentFactory struct {
	cfg   *config.Config
	photo *photoapi.Client
	repo  *repository.SQLiteGroupRepository
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{cfg: cfg}
}

// PhotoClient returns the shared photo service client
func (f *ComponentFactory) PhotoClient() (*photoapi.Client, error) {
	if f.photo != nil {
		return f.photo, nil
	}
	c, err := photoapi.NewClient(photoapi.Config{
		BaseURL:         f.cfg.PhotoAPI.BaseURL,
		APIKey:          f.cfg.PhotoAPI.APIKey,
		HTTPClient:      storage.NewHTTPClient(f.cfg.PhotoAPI.RequestTimeout),
		RatePerSecond:   f.cfg.PhotoAPI.RatePerSecond,
		Burst:           f.cfg.PhotoAPI.Burst,
		BreakerFailures: f.cfg.PhotoAPI.BreakerFailures,
		BreakerTimeout:  f.cfg.PhotoAPI.BreakerTimeout,
		MaxPreviewBytes: f.cfg.Source.MaxPreviewBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create photo service client: %w", err)
	}
	f.photo = c
	return c, nil
}

// GroupRepository returns the shared SQLite repository, opening it on first
// use
func (f *ComponentFactory) GroupRepository() (*repository.SQLiteGroupRepository, error) {
	if f.repo != nil {
		return f.repo, nil
	}
	if f.cfg.Source.SQLitePath == "" {
		return nil, repository.ErrRepositoryUnavailable
	}
	repo, err := repository.NewSQLiteGroupRepository(f.cfg.Source.SQLitePath)
	if err != nil {
		return nil, err
	}
	f.repo = repo
	return repo, nil
}

// CreateAssetSource creates the preview source selected by source.assets
func (f *ComponentFactory) CreateAssetSource() (resolver.AssetSource, error) {
	src := f.cfg.Source
	switch AssetSourceType(src.Assets) {
	case PhotoAPIAssets:
		c, err := f.PhotoClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	case HTTPAssets:
		return storage.NewHTTPAssetSource(src.HTTPBaseURL,
			storage.WithMaxPreviewBytes(src.MaxPreviewBytes),
			storage.WithHTTPClient(storage.NewHTTPClient(f.cfg.Resolver.FetchTimeout)),
		), nil
	case AzureAssets:
		az, err := storage.NewAzureAssetSource(src.AzureAccount, src.AzureKey, src.AzureContainer, src.AzurePrefix, src.MaxPreviewBytes)
		if err != nil {
			return nil, err
		}
		return az, nil
	case FileAssets:
		return storage.NewFileAssetSource(src.Dir, src.MaxPreviewBytes), nil
	default:
		return nil, fmt.Errorf("unsupported asset source: %s", src.Assets)
	}
}

// CreateMetadataSource creates the metadata source selected by
// source.metadata. It returns a nil source for "none".
func (f *ComponentFactory) CreateMetadataSource() (resolver.MetadataSource, error) {
	switch MetadataSourceType(f.cfg.Source.Metadata) {
	case PhotoAPIMetadata:
		c, err := f.PhotoClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	case StaticMetadata:
		repo, err := repository.LoadStaticMetadata(f.cfg.Source.MetadataPath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case NoMetadata:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported metadata source: %s", f.cfg.Source.Metadata)
	}
}

// CreateGroupSource creates the group source selected by source.groups
func (f *ComponentFactory) CreateGroupSource() (resolver.GroupSource, error) {
	switch GroupSourceType(f.cfg.Source.Groups) {
	case PhotoAPIGroups:
		c, err := f.PhotoClient()
		if err != nil {
			return nil, err
		}
		return c, nil
	case SQLiteGroups:
		repo, err := f.GroupRepository()
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported group source: %s", f.cfg.Source.Groups)
	}
}

// CreateResolver wires the configured sources into a resolver
func (f *ComponentFactory) CreateResolver() (*resolver.Resolver, error) {
	assets, err := f.CreateAssetSource()
	if err != nil {
		return nil, err
	}
	metadata, err := f.CreateMetadataSource()
	if err != nil {
		return nil, err
	}
	return resolver.New(assets, metadata,
		decoder.NewImageDecoder(f.cfg.Resolver.MaxPixels),
		f.cfg.Scoring.Weights,
		resolver.WithFetchTimeout(f.cfg.Resolver.FetchTimeout),
		resolver.WithConcurrency(f.cfg.Resolver.Concurrency),
		resolver.WithGroupConcurrency(f.cfg.Resolver.GroupConcurrency),
	)
}

// CreatePlanner creates the effects planner for mode, falling back to the
// configured mode when mode is empty
func (f *ComponentFactory) CreatePlanner(mode effects.Mode) (*effects.Planner, error) {
	if mode == "" {
		mode = effects.Mode(f.cfg.Effects.Mode)
	}
	return effects.NewPlanner(mode, effects.Policy{
		SkipDegraded:    f.cfg.Scoring.SkipDegraded,
		ProtectFailed:   f.cfg.Effects.ProtectFailed,
		WinnerAlbum:     f.cfg.Effects.WinnerAlbum,
		AlternatesAlbum: f.cfg.Effects.AlternatesAlbum,
	})
}

// CreateExecutor creates the executor that applies plans to the photo
// service. Dry runs never create a client.
func (f *ComponentFactory) CreateExecutor(dryRun bool) (*effects.Executor, error) {
	if dryRun {
		return effects.NewExecutor(nil, true)
	}
	c, err := f.PhotoClient()
	if err != nil {
		return nil, err
	}
	return effects.NewExecutor(c, false)
}

// Close releases the resources the factory opened
func (f *ComponentFactory) Close() error {
	var errs []error
	if f.repo != nil {
		if err := f.repo.Close(); err != nil {
			errs = append(errs, err)
		}
		f.repo = nil
	}
	return errors.Join(errs...)
}
