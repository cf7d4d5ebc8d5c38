package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"go-best-shot/internal/analyzer"
	"go-best-shot/internal/decoder"
	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/scoring"
)

// mapAssetSource serves fixed bytes per asset ID; missing IDs are unavailable
type mapAssetSource struct {
	data  map[string][]byte
	delay map[string]time.Duration
}

func (s *mapAssetSource) FetchPreview(ctx context.Context, assetID string) ([]byte, error) {
	if d := s.delay[assetID]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", apperrors.ErrUnavailableInput, ctx.Err())
		}
	}
	b, ok := s.data[assetID]
	if !ok {
		return nil, fmt.Errorf("asset %s: %w", assetID, apperrors.ErrUnavailableInput)
	}
	return b, nil
}

type mapMetadataSource struct {
	meta map[string]scoring.Metadata
	err  error
}

func (s *mapMetadataSource) FetchMetadata(_ context.Context, assetID string) (scoring.Metadata, error) {
	if s.err != nil {
		return scoring.Metadata{}, s.err
	}
	m, ok := s.meta[assetID]
	if !ok {
		return scoring.Metadata{}, apperrors.ErrMetadataUnavailable
	}
	return m, nil
}

// widthDecoder decodes the ASCII width in data into a 1-row buffer.
// "bad" fails to decode, "broken" yields a buffer with the wrong length.
type widthDecoder struct{}

func (widthDecoder) Decode(data []byte) (analyzer.PixelBuffer, error) {
	switch string(data) {
	case "bad":
		return analyzer.PixelBuffer{}, fmt.Errorf("%w: not an image", apperrors.ErrDecodeFailure)
	case "broken":
		return analyzer.PixelBuffer{Width: 4, Height: 4, Pix: make([]byte, 3)}, nil
	}
	w, err := strconv.Atoi(string(data))
	if err != nil {
		return analyzer.PixelBuffer{}, fmt.Errorf("%w: %v", apperrors.ErrDecodeFailure, err)
	}
	return analyzer.PixelBuffer{Width: w, Height: 1, Pix: make([]byte, w*4)}, nil
}

// widthCalculator reports sharpness = width/10 and nothing else
type widthCalculator struct{}

func (widthCalculator) Analyze(lum analyzer.LuminanceMap) analyzer.Metrics {
	return analyzer.Metrics{Sharpness: float64(lum.Width) / 10}
}
func (widthCalculator) LaplacianVariance(analyzer.LuminanceMap) float64 { return 0 }
func (widthCalculator) Sharpness(lum analyzer.LuminanceMap) float64  { return float64(lum.Width) / 10 }
func (widthCalculator) Exposure(analyzer.LuminanceMap) float64       { return 0 }
func (widthCalculator) Composition(analyzer.LuminanceMap) float64    { return 0 }

var sharpnessOnly = scoring.ScoreWeights{Sharpness: 1}

func newTestResolver(t *testing.T, src AssetSource, meta MetadataSource, opts ...Option) *Resolver {
	t.Helper()
	opts = append([]Option{WithMetricsCalculator(widthCalculator{})}, opts...)
	r, err := New(src, meta, widthDecoder{}, sharpnessOnly, opts...)
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	return r
}

func totals(res ResolutionResult) []float64 {
	out := make([]float64, len(res.Scores))
	for i, s := range res.Scores {
		out[i] = s.Total
	}
	return out
}

func TestResolve_WinnerAndAlternates(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{
		"B": []byte("6"),
		"C": []byte("8"),
	}}
	r := newTestResolver(t, src, nil)

	res, ok := r.Resolve(context.Background(), DuplicateGroup{ID: "g1", AssetIDs: []string{"A", "B", "C"}})
	if !ok {
		t.Fatal("Expected a result for a non-empty group")
	}

	if res.Winner != "C" {
		t.Errorf("Expected winner C, got %s", res.Winner)
	}
	if diff := cmp.Diff([]string{"B", "A"}, res.Alternates); diff != "" {
		t.Errorf("Alternates mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.8, 0.6, 0}, totals(res)); diff != "" {
		t.Errorf("Totals mismatch (-want +got):\n%s", diff)
	}
	if got := res.Scores[2].Breakdown.Reason; got != ReasonNoPreview {
		t.Errorf("Expected A to fail with no_preview, got %q", got)
	}
	if res.Degraded {
		t.Error("Expected a non-degraded result")
	}
}

func TestResolve_EmptyGroup(t *testing.T) {
	r := newTestResolver(t, &mapAssetSource{}, nil)

	if _, ok := r.Resolve(context.Background(), DuplicateGroup{ID: "empty"}); ok {
		t.Error("Expected no result for empty group")
	}
	if _, ok := r.Resolve(context.Background(), DuplicateGroup{ID: "blank", AssetIDs: []string{" ", ""}}); ok {
		t.Error("Expected no result for group of blank IDs")
	}
}

func TestResolve_FailureReasons(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{
		"ok":     []byte("5"),
		"bad":    []byte("bad"),
		"broken": []byte("broken"),
	}}
	r := newTestResolver(t, src, nil)

	res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"missing", "bad", "broken", "ok"}})

	reasons := map[string]FailureReason{}
	for _, s := range res.Scores {
		reasons[s.AssetID] = s.Breakdown.Reason
		if s.Failed() && s.Total != 0 {
			t.Errorf("Expected failed asset %s to score 0, got %f", s.AssetID, s.Total)
		}
	}

	want := map[string]FailureReason{
		"missing": ReasonNoPreview,
		"bad":     ReasonDecodeFailed,
		"broken":  ReasonInvalidBuffer,
		"ok":      ReasonNone,
	}
	if diff := cmp.Diff(want, reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
	if res.Winner != "ok" {
		t.Errorf("Expected winner ok, got %s", res.Winner)
	}
}

func TestResolve_AllFailedIsDegraded(t *testing.T) {
	r := newTestResolver(t, &mapAssetSource{}, nil)

	res, ok := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"x", "y", "z"}})
	if !ok {
		t.Fatal("Expected a result even when every asset fails")
	}
	if !res.Degraded {
		t.Error("Expected degraded result")
	}
	if res.Winner != "x" {
		t.Errorf("Expected stable tie-break to pick x, got %s", res.Winner)
	}
	if diff := cmp.Diff([]string{"y", "z"}, res.Alternates); diff != "" {
		t.Errorf("Alternates mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_TiesKeepEnumerationOrder(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{
		"a": []byte("3"), "b": []byte("7"), "c": []byte("3"), "d": []byte("7"),
	}}
	r := newTestResolver(t, src, nil, WithConcurrency(4))

	for i := 0; i < 20; i++ {
		res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"a", "b", "c", "d"}})
		if res.Winner != "b" {
			t.Fatalf("Expected winner b, got %s", res.Winner)
		}
		if diff := cmp.Diff([]string{"d", "a", "c"}, res.Alternates); diff != "" {
			t.Fatalf("Alternates mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestResolve_RankingIgnoresCompletionOrder(t *testing.T) {
	// The best asset finishes last
	src := &mapAssetSource{
		data: map[string][]byte{"slow": []byte("9"), "fast": []byte("2"), "mid": []byte("5")},
		delay: map[string]time.Duration{
			"slow": 30 * time.Millisecond,
			"mid":  10 * time.Millisecond,
		},
	}
	r := newTestResolver(t, src, nil, WithConcurrency(3))

	res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"fast", "slow", "mid"}})
	if res.Winner != "slow" {
		t.Errorf("Expected winner slow, got %s", res.Winner)
	}
	if diff := cmp.Diff([]string{"mid", "fast"}, res.Alternates); diff != "" {
		t.Errorf("Alternates mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_FetchTimeoutDegradesToNoPreview(t *testing.T) {
	src := &mapAssetSource{
		data:  map[string][]byte{"stuck": []byte("9"), "quick": []byte("1")},
		delay: map[string]time.Duration{"stuck": time.Minute},
	}
	r := newTestResolver(t, src, nil, WithFetchTimeout(20*time.Millisecond))

	start := time.Now()
	res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"stuck", "quick"}})
	if time.Since(start) > 5*time.Second {
		t.Fatal("Expected the fetch timeout to unblock the group")
	}
	if res.Winner != "quick" {
		t.Errorf("Expected winner quick, got %s", res.Winner)
	}
	if got := res.Scores[1].Breakdown.Reason; got != ReasonNoPreview {
		t.Errorf("Expected stuck asset to be no_preview, got %q", got)
	}
}

func TestResolve_MetadataSignals(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{"p": []byte("5"), "s": []byte("5")}}
	meta := &mapMetadataSource{meta: map[string]scoring.Metadata{
		"p": scoring.NewMetadata(3, []string{"portrait"}),
		"s": scoring.NewMetadata(0, []string{"screenshot"}),
	}}

	weights := scoring.ScoreWeights{Sharpness: 1, Face: 1, Tags: 1}
	r, err := New(src, meta, widthDecoder{}, weights, WithMetricsCalculator(widthCalculator{}))
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"s", "p"}})
	if res.Winner != "p" {
		t.Fatalf("Expected portrait to win, got %s", res.Winner)
	}
	if got, want := res.Scores[0].Total, 0.5+1+0.85; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected total %f, got %f", want, got)
	}
	if got, want := res.Scores[1].Total, 0.5+0+0.2; math.Abs(got-want) > 1e-9 {
		t.Errorf("Expected total %f, got %f", want, got)
	}
}

func TestResolve_MetadataFailureIsNotFatal(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{"a": []byte("4")}}
	meta := &mapMetadataSource{err: errors.New("metadata service down")}

	weights := scoring.ScoreWeights{Sharpness: 1, Face: 1, Tags: 1}
	r, err := New(src, meta, widthDecoder{}, weights, WithMetricsCalculator(widthCalculator{}))
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	res, _ := r.Resolve(context.Background(), DuplicateGroup{ID: "g", AssetIDs: []string{"a"}})
	s := res.Scores[0]
	if s.Failed() {
		t.Fatalf("Expected metadata failure not to fail the asset, got reason %q", s.Breakdown.Reason)
	}
	if s.Breakdown.Face != 0 || s.Breakdown.Tags != 0 || !s.Breakdown.MetadataMissing {
		t.Errorf("Expected zero metadata contribution, got %+v", s.Breakdown)
	}
	if math.Abs(s.Total-0.4) > 1e-9 {
		t.Errorf("Expected total 0.4, got %f", s.Total)
	}
}

func TestResolveAll_SkipsEmptyAndKeepsOrder(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}}
	r := newTestResolver(t, src, nil, WithGroupConcurrency(3))

	groups := []DuplicateGroup{
		{ID: "g1", AssetIDs: []string{"a", "b"}},
		{ID: "empty"},
		{ID: "g2", AssetIDs: []string{"c", "a"}},
	}

	results, err := r.ResolveAll(context.Background(), groups)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var ids, winners []string
	for _, res := range results {
		ids = append(ids, res.GroupID)
		winners = append(winners, res.Winner)
	}
	if diff := cmp.Diff([]string{"g1", "g2"}, ids); diff != "" {
		t.Errorf("Group IDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "c"}, winners); diff != "" {
		t.Errorf("Winners mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAllFunc_ReportsEachGroup(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{"a": []byte("1"), "b": []byte("2")}}
	r := newTestResolver(t, src, nil, WithGroupConcurrency(2))

	var mu sync.Mutex
	seen := make(map[string]string)
	fn := func(res ResolutionResult, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		if elapsed < 0 {
			t.Errorf("Negative elapsed time for %s", res.GroupID)
		}
		seen[res.GroupID] = res.Winner
	}

	groups := []DuplicateGroup{
		{ID: "g1", AssetIDs: []string{"a", "b"}},
		{ID: "empty", AssetIDs: []string{" "}},
		{ID: "g2", AssetIDs: []string{"a"}},
	}
	if _, err := r.ResolveAllFunc(context.Background(), groups, fn); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"g1": "b", "g2": "a"}, seen); diff != "" {
		t.Errorf("Callbacks mismatch (-want +got):\n%s", diff)
	}
}

func TestResolveAll_CancelledContext(t *testing.T) {
	r := newTestResolver(t, &mapAssetSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.ResolveAll(ctx, []DuplicateGroup{{ID: "g", AssetIDs: []string{"a"}}}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, nil, widthDecoder{}, scoring.DefaultWeights()); err == nil {
		t.Error("Expected error for nil asset source")
	}
	if _, err := New(&mapAssetSource{}, nil, nil, scoring.DefaultWeights()); err == nil {
		t.Error("Expected error for nil decoder")
	}
	if _, err := New(&mapAssetSource{}, nil, widthDecoder{}, scoring.ScoreWeights{Face: -1}); err == nil {
		t.Error("Expected error for negative weight")
	}
}

func TestScoreBytes(t *testing.T) {
	r := newTestResolver(t, &mapAssetSource{}, nil)

	if got := r.ScoreBytes(context.Background(), "x", []byte("bad"), nil); got.Breakdown.Reason != ReasonDecodeFailed {
		t.Errorf("Expected decode_failed, got %q", got.Breakdown.Reason)
	}
	got := r.ScoreBytes(context.Background(), "x", []byte("7"), nil)
	if math.Abs(got.Total-0.7) > 1e-9 {
		t.Errorf("Expected total 0.7, got %f", got.Total)
	}
	if !got.Breakdown.MetadataMissing {
		t.Error("Expected nil metadata to be reported as missing")
	}
}

func pngBytes(t *testing.T, width, height int, fill func(x, y int) uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := fill(x, y)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func TestResolve_EndToEndIsIdempotent(t *testing.T) {
	src := &mapAssetSource{data: map[string][]byte{
		"flat":  pngBytes(t, 48, 48, func(x, y int) uint8 { return 130 }),
		"check": pngBytes(t, 48, 48, func(x, y int) uint8 { return uint8(((x + y) % 2) * 255) }),
		"grad":  pngBytes(t, 48, 48, func(x, y int) uint8 { return uint8(x * 5) }),
	}}
	meta := &mapMetadataSource{meta: map[string]scoring.Metadata{
		"grad": scoring.NewMetadata(1, []string{"family"}),
	}}

	r, err := New(src, meta, decoder.NewImageDecoder(0), scoring.DefaultWeights())
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}

	group := DuplicateGroup{ID: "g", AssetIDs: []string{"flat", "check", "grad"}}
	first, _ := r.Resolve(context.Background(), group)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, _ := r.Resolve(context.Background(), group)
			if diff := cmp.Diff(first, again); diff != "" {
				t.Errorf("Expected identical results on re-run (-first +again):\n%s", diff)
			}
		}()
	}
	wg.Wait()

	for _, s := range first.Scores {
		if s.Total < 0 || s.Total > scoring.DefaultWeights().Sum()+1e-9 {
			t.Errorf("Total out of range for %s: %f", s.AssetID, s.Total)
		}
	}
}
