package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"go-best-shot/internal/effects"
	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/logger"
	"go-best-shot/internal/observer"
	"go-best-shot/internal/repository"
	"go-best-shot/internal/resolver"
	"go-best-shot/internal/scoring"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still going
var ErrRunInProgress = errors.New("a resolution run is already in progress")

// ResolutionService defines the operations exposed by the API and the CLI
type ResolutionService interface {
	// Run resolves every duplicate group and applies the chosen effects
	Run(ctx context.Context, opts RunOptions) (*RunSummary, error)

	// ResolveGroup resolves one caller-supplied group without side effects
	ResolveGroup(ctx context.Context, group resolver.DuplicateGroup) (*resolver.ResolutionResult, error)

	// ScoreImage scores raw preview bytes with optional metadata
	ScoreImage(ctx context.Context, data []byte, meta *scoring.Metadata) (resolver.AssetScore, error)
}

// RunOptions overrides the configured effects for one run
type RunOptions struct {
	Mode   effects.Mode // empty uses the configured mode
	DryRun *bool        // nil uses the configured setting
}

// RunSummary describes a finished run
type RunSummary struct {
	RunID      string                      `json:"run_id"`
	StartedAt  time.Time                   `json:"started_at"`
	FinishedAt time.Time                   `json:"finished_at"`
	Mode       effects.Mode                `json:"mode"`
	DryRun     bool                        `json:"dry_run"`
	Groups     int                         `json:"groups"`
	Degraded   int                         `json:"degraded"`
	Results    []resolver.ResolutionResult `json:"results"`
	Plans      []effects.Plan              `json:"plans"`
	Report     effects.Report              `json:"report"`
}

// RunRecorder keeps the run history
type RunRecorder interface {
	RecordRun(ctx context.Context, run repository.RunRecord) error
}

// PlannerFunc returns the planner for a mode; an empty mode means the
// configured one
type PlannerFunc func(mode effects.Mode) (*effects.Planner, error)

// ExecutorFunc returns an executor for the given dry-run setting
type ExecutorFunc func(dryRun bool) (*effects.Executor, error)

// Dependencies are the collaborators of the resolution service
type Dependencies struct {
	Groups    resolver.GroupSource
	Resolver  *resolver.Resolver
	Planners  PlannerFunc
	Executors ExecutorFunc
	DryRun    bool

	// History and Events are optional
	History RunRecorder
	Events  observer.Subject
}

// resolutionService implements ResolutionService
type resolutionService struct {
	deps  Dependencies
	runMu sync.Mutex
}

// NewResolutionService creates a new resolution service
func NewResolutionService(deps Dependencies) (ResolutionService, error) {
	if deps.Groups == nil || deps.Resolver == nil {
		return nil, errors.New("service: group source and resolver are required")
	}
	if deps.Planners == nil || deps.Executors == nil {
		return nil, errors.New("service: planner and executor constructors are required")
	}
	return &resolutionService{deps: deps}, nil
}

// Run lists the groups, resolves them and applies the effects of each plan.
// Failed effects are counted in the report and do not abort the run.
func (s *resolutionService) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	dryRun := s.deps.DryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}
	planner, err := s.deps.Planners(opts.Mode)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid effects mode", err)
	}
	executor, err := s.deps.Executors(dryRun)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create effects executor", err)
	}

	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Mode:      planner.Mode(),
		DryRun:    dryRun,
	}
	log := logger.WithFields(logrus.Fields{
		"run_id":  summary.RunID,
		"mode":    summary.Mode,
		"dry_run": dryRun,
	})
	s.publish(ctx, observer.ResolutionEvent{EventType: observer.RunStarted, RunID: summary.RunID, Success: true})

	groups, err := s.deps.Groups.ListGroups(ctx)
	if err != nil {
		err = apperrors.NewNetworkError("failed to list duplicate groups", err)
		s.finish(ctx, summary, err)
		return nil, err
	}
	log.WithField("groups", len(groups)).Info("Resolving duplicate groups")

	results, err := s.deps.Resolver.ResolveAllFunc(ctx, groups, func(res resolver.ResolutionResult, elapsed time.Duration) {
		s.publishResult(ctx, summary.RunID, res, elapsed)
	})
	if err != nil {
		err = apperrors.NewTimeoutError("resolution run interrupted", err)
		s.finish(ctx, summary, err)
		return nil, err
	}

	summary.Results = results
	summary.Plans = make([]effects.Plan, 0, len(results))
	for _, res := range results {
		summary.Groups++
		if res.Degraded {
			summary.Degraded++
		}

		plan := planner.Plan(res)
		summary.Plans = append(summary.Plans, plan)
		if plan.Skipped != "" {
			log.WithFields(logrus.Fields{
				"group_id": plan.GroupID,
				"skipped":  plan.Skipped,
			}).Warn("Skipping effects for degraded group")
			continue
		}
		if len(plan.Actions) == 0 {
			continue
		}

		start := time.Now()
		report, applyErr := executor.Apply(ctx, plan)
		summary.Report.Add(report)
		event := observer.ResolutionEvent{
			EventType: observer.EffectsApplied,
			RunID:     summary.RunID,
			GroupID:   plan.GroupID,
			Duration:  time.Since(start),
			Success:   applyErr == nil,
			Metadata: map[string]interface{}{
				"applied": report.Applied,
				"dry_run": report.DryRun,
				"failed":  report.Failed,
			},
		}
		if applyErr != nil {
			event.Error = applyErr.Error()
		}
		s.publish(ctx, event)
	}

	s.finish(ctx, summary, nil)
	return summary, nil
}

// finish stamps the summary, records it and publishes the completion event
func (s *resolutionService) finish(ctx context.Context, summary *RunSummary, runErr error) {
	summary.FinishedAt = time.Now()

	event := observer.ResolutionEvent{
		EventType: observer.RunCompleted,
		RunID:     summary.RunID,
		Duration:  summary.FinishedAt.Sub(summary.StartedAt),
		Success:   runErr == nil && summary.Report.Failed == 0,
		Metadata: map[string]interface{}{
			"groups":   summary.Groups,
			"degraded": summary.Degraded,
		},
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	s.publish(ctx, event)

	if runErr != nil || s.deps.History == nil {
		return
	}
	actions := 0
	for _, p := range summary.Plans {
		actions += len(p.Actions)
	}
	record := repository.RunRecord{
		ID:         summary.RunID,
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
		Groups:     summary.Groups,
		Degraded:   summary.Degraded,
		Actions:    actions,
		DryRun:     summary.DryRun,
		Mode:       string(summary.Mode),
	}
	// A lost history row is logged, the run still succeeds
	if err := s.deps.History.RecordRun(context.WithoutCancel(ctx), record); err != nil {
		logger.WithError(err).WithField("run_id", summary.RunID).Warn("Failed to record run history")
	}
}

// ResolveGroup resolves one group without applying effects
func (s *resolutionService) ResolveGroup(ctx context.Context, group resolver.DuplicateGroup) (*resolver.ResolutionResult, error) {
	start := time.Now()
	res, ok := s.deps.Resolver.Resolve(ctx, group)
	if !ok {
		return nil, apperrors.NewValidationError("group has no assets", nil)
	}
	s.publishResult(ctx, "", res, time.Since(start))
	return &res, nil
}

// ScoreImage scores preview bytes supplied by the caller. An undecodable
// image still yields its zero score alongside the error.
func (s *resolutionService) ScoreImage(ctx context.Context, data []byte, meta *scoring.Metadata) (resolver.AssetScore, error) {
	if len(data) == 0 {
		return resolver.AssetScore{}, apperrors.NewValidationError("image body is empty", nil)
	}

	score := s.deps.Resolver.ScoreBytes(ctx, "upload", data, meta)
	switch score.Breakdown.Reason {
	case resolver.ReasonDecodeFailed:
		return score, fmt.Errorf("%w: uploaded image", apperrors.ErrDecodeFailure)
	case resolver.ReasonInvalidBuffer:
		return score, fmt.Errorf("%w: uploaded image", apperrors.ErrInvalidBuffer)
	}
	return score, nil
}

func (s *resolutionService) publishResult(ctx context.Context, runID string, res resolver.ResolutionResult, elapsed time.Duration) {
	for _, score := range res.Scores {
		s.publish(ctx, observer.ResolutionEvent{
			EventType: observer.AssetScored,
			RunID:     runID,
			GroupID:   res.GroupID,
			AssetID:   score.AssetID,
			Reason:    string(score.Breakdown.Reason),
			Score:     score.Total,
			Success:   !score.Failed(),
		})
	}

	event := observer.ResolutionEvent{
		EventType: observer.GroupResolved,
		RunID:     runID,
		GroupID:   res.GroupID,
		Duration:  elapsed,
		Success:   true,
		Metadata: map[string]interface{}{
			"winner":     res.Winner,
			"alternates": len(res.Alternates),
		},
	}
	if len(res.Scores) > 0 {
		event.Score = res.Scores[0].Total
	}
	if res.Degraded {
		event.Reason = effects.SkipAllScoresZero
	}
	s.publish(ctx, event)
}

func (s *resolutionService) publish(ctx context.Context, event observer.ResolutionEvent) {
	if s.deps.Events != nil {
		s.deps.Events.NotifyObservers(ctx, event)
	}
}
