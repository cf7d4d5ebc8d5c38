package container

import (
	"errors"
	"fmt"
	"net/http"

	"go-best-shot/internal/config"
	"go-best-shot/internal/factory"
	"go-best-shot/internal/logger"
	"go-best-shot/internal/observer"
	"go-best-shot/internal/repository"
	"go-best-shot/internal/service"
	"go-best-shot/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	factory    *factory.ComponentFactory
	repository *repository.SQLiteGroupRepository
	publisher  *observer.EventPublisher
	stats      *observer.MetricsObserver
	service    service.ResolutionService
	handler    http.Handler
}

// NewContainer builds the dependency graph described by cfg
func NewContainer(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("container: configuration is required")
	}

	f := factory.NewComponentFactory(cfg)

	res, err := f.CreateResolver()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}
	groups, err := f.CreateGroupSource()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create group source: %w", err)
	}

	// Run history is kept whenever a database path is configured
	var repo *repository.SQLiteGroupRepository
	var history service.RunRecorder
	if cfg.Source.SQLitePath != "" {
		repo, err = f.GroupRepository()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open group repository: %w", err)
		}
		history = repo
	}

	publisher := observer.NewEventPublisher()
	stats := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(stats)

	svc, err := service.NewResolutionService(service.Dependencies{
		Groups:    groups,
		Resolver:  res,
		Planners:  f.CreatePlanner,
		Executors: f.CreateExecutor,
		DryRun:    cfg.Effects.DryRun,
		History:   history,
		Events:    publisher,
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Container{
		config:     cfg,
		factory:    f,
		repository: repo,
		publisher:  publisher,
		stats:      stats,
		service:    svc,
		handler:    transport.NewHandler(svc, cfg, stats),
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the resolution service
func (c *Container) Service() service.ResolutionService {
	return c.service
}

// Repository returns the SQLite repository, or nil when none is configured
func (c *Container) Repository() *repository.SQLiteGroupRepository {
	return c.repository
}

// Publisher returns the event publisher so callers can add observers
func (c *Container) Publisher() *observer.EventPublisher {
	return c.publisher
}

// Close releases the database and other resources
func (c *Container) Close() error {
	return c.factory.Close()
}
