package effects

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"go-best-shot/internal/logger"
	"go-best-shot/internal/metrics"
	"go-best-shot/internal/resolver"
)

// SkipAllScoresZero is the skip reason of a degraded group under SkipDegraded
const SkipAllScoresZero = "all_scores_zero"

// Plan is the set of actions for one resolved group
type Plan struct {
	GroupID string   `json:"group_id"`
	Mode    Mode     `json:"mode"`
	Actions []Action `json:"actions"`
	Skipped string   `json:"skipped,omitempty"`
}

// Planner applies the current strategy and the degraded-input policy
type Planner struct {
	strategy Strategy
	policy   Policy
}

// NewPlanner creates a planner for mode
func NewPlanner(mode Mode, policy Policy) (*Planner, error) {
	strategy, err := NewStrategy(mode)
	if err != nil {
		return nil, err
	}
	if mode == ModeAlbums && (policy.WinnerAlbum == "" || policy.AlternatesAlbum == "") {
		return nil, fmt.Errorf("albums mode needs winner and alternates album names")
	}
	return &Planner{strategy: strategy, policy: policy}, nil
}

// SetStrategy changes the strategy used by later plans
func (p *Planner) SetStrategy(strategy Strategy) {
	p.strategy = strategy
}

// Mode returns the mode of the current strategy
func (p *Planner) Mode() Mode {
	return p.strategy.Mode()
}

// Plan builds the plan for one result. A degraded result gets an empty,
// skipped plan when the strategy is destructive and SkipDegraded is set.
func (p *Planner) Plan(result resolver.ResolutionResult) Plan {
	plan := Plan{GroupID: result.GroupID, Mode: p.strategy.Mode()}
	if result.Winner == "" {
		return plan
	}
	if result.Degraded && p.policy.SkipDegraded && p.strategy.Destructive() {
		plan.Skipped = SkipAllScoresZero
		return plan
	}
	plan.Actions = p.strategy.Plan(result, p.policy)
	return plan
}

// Sink is the library that effects are applied to
type Sink interface {
	SetFavorite(ctx context.Context, assetIDs []string, favorite bool) error
	SetArchived(ctx context.Context, assetIDs []string, archived bool) error
	DeleteAssets(ctx context.Context, assetIDs []string) error
	AddToAlbum(ctx context.Context, albumName string, assetIDs []string) error
}

// Report counts what an Executor did with a plan
type Report struct {
	Applied int `json:"applied"`
	DryRun  int `json:"dry_run"`
	Failed  int `json:"failed"`
}

// Add accumulates another report
func (r *Report) Add(o Report) {
	r.Applied += o.Applied
	r.DryRun += o.DryRun
	r.Failed += o.Failed
}

// Executor applies plans against a Sink. In dry-run mode it only logs.
type Executor struct {
	sink   Sink
	dryRun bool
}

// NewExecutor creates an executor. sink may be nil only for dry runs.
func NewExecutor(sink Sink, dryRun bool) (*Executor, error) {
	if sink == nil && !dryRun {
		return nil, errors.New("effects: a sink is required unless dry run is enabled")
	}
	return &Executor{sink: sink, dryRun: dryRun}, nil
}

// DryRun reports whether the executor leaves the library untouched
func (e *Executor) DryRun() bool {
	return e.dryRun
}

// Apply runs every action of the plan. Failed actions do not stop the
// remaining ones; their errors are joined.
func (e *Executor) Apply(ctx context.Context, plan Plan) (Report, error) {
	var report Report
	var errs []error

	for _, action := range plan.Actions {
		log := logger.WithFields(logrus.Fields{
			"group_id": plan.GroupID,
			"action":   action.Kind,
			"assets":   action.AssetIDs,
			"album":    action.Album,
			"dry_run":  e.dryRun,
		})

		if e.dryRun {
			log.Info("Planned action")
			metrics.EffectsApplied.WithLabelValues(string(action.Kind), "dry_run").Inc()
			report.DryRun++
			continue
		}

		if err := e.apply(ctx, action); err != nil {
			log.WithError(err).Error("Failed to apply action")
			metrics.EffectsApplied.WithLabelValues(string(action.Kind), "failed").Inc()
			report.Failed++
			errs = append(errs, fmt.Errorf("group %s: %s: %w", plan.GroupID, action.Kind, err))
			continue
		}
		log.Info("Applied action")
		metrics.EffectsApplied.WithLabelValues(string(action.Kind), "applied").Inc()
		report.Applied++
	}

	return report, errors.Join(errs...)
}

func (e *Executor) apply(ctx context.Context, action Action) error {
	switch action.Kind {
	case ActionFavorite:
		return e.sink.SetFavorite(ctx, action.AssetIDs, true)
	case ActionUnfavorite:
		return e.sink.SetFavorite(ctx, action.AssetIDs, false)
	case ActionArchive:
		return e.sink.SetArchived(ctx, action.AssetIDs, true)
	case ActionDelete:
		return e.sink.DeleteAssets(ctx, action.AssetIDs)
	case ActionAddToAlbum:
		return e.sink.AddToAlbum(ctx, action.Album, action.AssetIDs)
	default:
		return fmt.Errorf("unknown action %q", action.Kind)
	}
}
