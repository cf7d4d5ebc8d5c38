package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-best-shot/internal/metrics"
)

// ResolutionEvent represents one step of a resolution run
type ResolutionEvent struct {
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	GroupID   string                 `json:"group_id,omitempty"`
	AssetID   string                 `json:"asset_id,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Score     float64                `json:"score,omitempty"`
	Duration  time.Duration          `json:"duration"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of resolution event
type EventType string

const (
	// RunStarted when a resolution run begins
	RunStarted EventType = "run_started"
	// RunCompleted when a run finishes, successfully or not
	RunCompleted EventType = "run_completed"
	// GroupResolved when a group has a winner
	GroupResolved EventType = "group_resolved"
	// AssetScored when one member of a group has been scored
	AssetScored EventType = "asset_scored"
	// EffectsApplied when a group's plan has been executed
	EffectsApplied EventType = "effects_applied"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event ResolutionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event ResolutionEvent)
}

// LoggingObserver logs resolution events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles resolution events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event ResolutionEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"duration":   event.Duration,
		"success":    event.Success,
	}
	if event.RunID != "" {
		fields["run_id"] = event.RunID
	}
	if event.GroupID != "" {
		fields["group_id"] = event.GroupID
	}
	if event.AssetID != "" {
		fields["asset_id"] = event.AssetID
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case RunStarted:
		entry.Info("Resolution run started")
	case RunCompleted:
		if event.Success {
			entry.Info("Resolution run completed")
		} else {
			entry.Error("Resolution run failed")
		}
	case GroupResolved:
		entry.WithField("winner_score", event.Score).Info("Duplicate group resolved")
	case AssetScored:
		entry.Debug("Asset scored")
	case EffectsApplied:
		if event.Success {
			entry.Info("Effects applied")
		} else {
			entry.Warn("Effects partially failed")
		}
	default:
		entry.Info("Resolution event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver feeds Prometheus and keeps in-process totals
type MetricsObserver struct {
	mu             sync.RWMutex
	totalRuns      int64
	failedRuns     int64
	groupsResolved int64
	degradedGroups int64
	failedAssets   int64
	totalGroupTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles resolution events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event ResolutionEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case RunCompleted:
		o.totalRuns++
		status := "success"
		if !event.Success {
			o.failedRuns++
			status = "failure"
		}
		metrics.RunsTotal.WithLabelValues(status).Inc()
	case GroupResolved:
		o.groupsResolved++
		o.totalGroupTime += event.Duration
		outcome := "ok"
		if event.Reason != "" {
			o.degradedGroups++
			outcome = "degraded"
		}
		metrics.GroupsResolved.WithLabelValues(outcome).Inc()
		metrics.GroupResolutionDuration.Observe(event.Duration.Seconds())
		metrics.WinnerScore.Observe(event.Score)
	case AssetScored:
		reason := event.Reason
		if reason == "" {
			reason = "ok"
		} else {
			o.failedAssets++
		}
		metrics.AssetsScored.WithLabelValues(reason).Inc()
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current totals
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgGroupTime := time.Duration(0)
	if o.groupsResolved > 0 {
		avgGroupTime = o.totalGroupTime / time.Duration(o.groupsResolved)
	}

	return map[string]interface{}{
		"total_runs":      o.totalRuns,
		"failed_runs":     o.failedRuns,
		"groups_resolved": o.groupsResolved,
		"degraded_groups": o.degradedGroups,
		"failed_assets":   o.failedAssets,
		"avg_group_time":  avgGroupTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers the event to every observer in subscription
// order, on the caller's goroutine.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event ResolutionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		notify(ctx, obs, event)
	}
}

func notify(ctx context.Context, obs Observer, event ResolutionEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
