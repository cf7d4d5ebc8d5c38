package effects

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go-best-shot/internal/resolver"
)

func sampleResult() resolver.ResolutionResult {
	return resolver.ResolutionResult{
		GroupID:    "g1",
		Winner:     "C",
		Alternates: []string{"B", "A"},
		Scores: []resolver.AssetScore{
			{AssetID: "C", Total: 0.8},
			{AssetID: "B", Total: 0.6},
			{AssetID: "A", Breakdown: resolver.Breakdown{Reason: resolver.ReasonNoPreview}},
		},
	}
}

func degradedResult() resolver.ResolutionResult {
	return resolver.ResolutionResult{
		GroupID:    "g2",
		Winner:     "x",
		Alternates: []string{"y"},
		Scores: []resolver.AssetScore{
			{AssetID: "x", Breakdown: resolver.Breakdown{Reason: resolver.ReasonDecodeFailed}},
			{AssetID: "y", Breakdown: resolver.Breakdown{Reason: resolver.ReasonNoPreview}},
		},
		Degraded: true,
	}
}

func TestPlanner_Modes(t *testing.T) {
	policy := Policy{SkipDegraded: true, WinnerAlbum: "Best", AlternatesAlbum: "Dupes"}

	tests := []struct {
		mode Mode
		want []Action
	}{
		{ModeFavorite, []Action{
			{Kind: ActionFavorite, AssetIDs: []string{"C"}},
			{Kind: ActionUnfavorite, AssetIDs: []string{"B", "A"}},
		}},
		{ModeHide, []Action{{Kind: ActionArchive, AssetIDs: []string{"B", "A"}}}},
		{ModeDelete, []Action{{Kind: ActionDelete, AssetIDs: []string{"B", "A"}}}},
		{ModeAlbums, []Action{
			{Kind: ActionAddToAlbum, AssetIDs: []string{"C"}, Album: "Best"},
			{Kind: ActionAddToAlbum, AssetIDs: []string{"B", "A"}, Album: "Dupes"},
		}},
		{ModeNone, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := NewPlanner(tt.mode, policy)
			if err != nil {
				t.Fatalf("NewPlanner failed: %v", err)
			}
			plan := p.Plan(sampleResult())
			if plan.GroupID != "g1" || plan.Mode != tt.mode || plan.Skipped != "" {
				t.Errorf("Unexpected plan header %+v", plan)
			}
			if diff := cmp.Diff(tt.want, plan.Actions); diff != "" {
				t.Errorf("Actions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlanner_ProtectFailed(t *testing.T) {
	p, err := NewPlanner(ModeDelete, Policy{ProtectFailed: true})
	if err != nil {
		t.Fatalf("NewPlanner failed: %v", err)
	}
	plan := p.Plan(sampleResult())
	want := []Action{{Kind: ActionDelete, AssetIDs: []string{"B"}}}
	if diff := cmp.Diff(want, plan.Actions); diff != "" {
		t.Errorf("Actions mismatch (-want +got):\n%s", diff)
	}

	// Nothing left to delete once every alternate is protected
	result := sampleResult()
	result.Alternates = []string{"A"}
	if plan := p.Plan(result); len(plan.Actions) != 0 {
		t.Errorf("Expected no actions, got %+v", plan.Actions)
	}
}

func TestPlanner_DegradedPolicy(t *testing.T) {
	tests := []struct {
		name        string
		mode        Mode
		skip        bool
		wantSkipped string
		wantActions int
	}{
		{"hide skipped", ModeHide, true, SkipAllScoresZero, 0},
		{"delete skipped", ModeDelete, true, SkipAllScoresZero, 0},
		{"favorite still applies", ModeFavorite, true, "", 2},
		{"delete without policy", ModeDelete, false, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlanner(tt.mode, Policy{SkipDegraded: tt.skip})
			if err != nil {
				t.Fatalf("NewPlanner failed: %v", err)
			}
			plan := p.Plan(degradedResult())
			if plan.Skipped != tt.wantSkipped {
				t.Errorf("Expected skipped %q, got %q", tt.wantSkipped, plan.Skipped)
			}
			if len(plan.Actions) != tt.wantActions {
				t.Errorf("Expected %d actions, got %d", tt.wantActions, len(plan.Actions))
			}
		})
	}
}

func TestPlanner_Errors(t *testing.T) {
	if _, err := NewPlanner("shred", Policy{}); err == nil {
		t.Error("Expected error for unknown mode")
	}
	if _, err := NewPlanner(ModeAlbums, Policy{WinnerAlbum: "Best"}); err == nil {
		t.Error("Expected error for albums mode without alternates album")
	}
}

func TestPlanner_SetStrategy(t *testing.T) {
	p, err := NewPlanner(ModeNone, Policy{})
	if err != nil {
		t.Fatalf("NewPlanner failed: %v", err)
	}
	p.SetStrategy(hideStrategy{})
	if p.Mode() != ModeHide {
		t.Errorf("Expected hide mode, got %s", p.Mode())
	}
	if plan := p.Plan(sampleResult()); len(plan.Actions) != 1 {
		t.Errorf("Expected one archive action, got %+v", plan.Actions)
	}
}

type sinkCall struct {
	Op    string
	IDs   []string
	Flag  bool
	Album string
}

type recordingSink struct {
	calls  []sinkCall
	failOn string
}

func (s *recordingSink) record(c sinkCall) error {
	s.calls = append(s.calls, c)
	if c.Op == s.failOn {
		return errors.New("service unavailable")
	}
	return nil
}

func (s *recordingSink) SetFavorite(_ context.Context, ids []string, favorite bool) error {
	return s.record(sinkCall{Op: "favorite", IDs: ids, Flag: favorite})
}

func (s *recordingSink) SetArchived(_ context.Context, ids []string, archived bool) error {
	return s.record(sinkCall{Op: "archive", IDs: ids, Flag: archived})
}

func (s *recordingSink) DeleteAssets(_ context.Context, ids []string) error {
	return s.record(sinkCall{Op: "delete", IDs: ids})
}

func (s *recordingSink) AddToAlbum(_ context.Context, album string, ids []string) error {
	return s.record(sinkCall{Op: "album", IDs: ids, Album: album})
}

func TestExecutor_Apply(t *testing.T) {
	sink := &recordingSink{}
	exec, err := NewExecutor(sink, false)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	plan := Plan{GroupID: "g1", Actions: []Action{
		{Kind: ActionFavorite, AssetIDs: []string{"C"}},
		{Kind: ActionUnfavorite, AssetIDs: []string{"B"}},
		{Kind: ActionArchive, AssetIDs: []string{"B"}},
		{Kind: ActionDelete, AssetIDs: []string{"A"}},
		{Kind: ActionAddToAlbum, AssetIDs: []string{"C"}, Album: "Best"},
	}}

	report, err := exec.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if diff := cmp.Diff(Report{Applied: 5}, report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}

	want := []sinkCall{
		{Op: "favorite", IDs: []string{"C"}, Flag: true},
		{Op: "favorite", IDs: []string{"B"}, Flag: false},
		{Op: "archive", IDs: []string{"B"}, Flag: true},
		{Op: "delete", IDs: []string{"A"}},
		{Op: "album", IDs: []string{"C"}, Album: "Best"},
	}
	if diff := cmp.Diff(want, sink.calls); diff != "" {
		t.Errorf("Sink calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExecutor_FailureContinues(t *testing.T) {
	sink := &recordingSink{failOn: "archive"}
	exec, err := NewExecutor(sink, false)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	plan := Plan{GroupID: "g1", Actions: []Action{
		{Kind: ActionArchive, AssetIDs: []string{"B"}},
		{Kind: ActionFavorite, AssetIDs: []string{"C"}},
	}}
	report, err := exec.Apply(context.Background(), plan)
	if err == nil {
		t.Fatal("Expected joined error")
	}
	if report.Failed != 1 || report.Applied != 1 {
		t.Errorf("Unexpected report %+v", report)
	}
	if len(sink.calls) != 2 {
		t.Errorf("Expected both actions to be attempted, got %d", len(sink.calls))
	}
}

func TestExecutor_DryRun(t *testing.T) {
	if _, err := NewExecutor(nil, false); err == nil {
		t.Error("Expected error for nil sink outside dry run")
	}

	exec, err := NewExecutor(nil, true)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	if !exec.DryRun() {
		t.Error("Expected dry run executor")
	}

	p, _ := NewPlanner(ModeDelete, Policy{})
	report, err := exec.Apply(context.Background(), p.Plan(sampleResult()))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if diff := cmp.Diff(Report{DryRun: 1}, report); diff != "" {
		t.Errorf("Report mismatch (-want +got):\n%s", diff)
	}

	var total Report
	total.Add(report)
	total.Add(Report{Applied: 2, Failed: 1})
	if diff := cmp.Diff(Report{Applied: 2, DryRun: 1, Failed: 1}, total); diff != "" {
		t.Errorf("Total mismatch (-want +got):\n%s", diff)
	}
}
