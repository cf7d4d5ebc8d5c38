package resolver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-best-shot/internal/analyzer"
	"go-best-shot/internal/decoder"
	apperrors "go-best-shot/internal/errors"
	"go-best-shot/internal/logger"
	"go-best-shot/internal/scoring"
)

// Resolver scores the members of duplicate groups and picks a winner per group
type Resolver struct {
	assets           AssetSource
	metadata         MetadataSource
	decoder          decoder.Decoder
	calculator       analyzer.MetricsCalculator
	blender          *scoring.Blender
	fetchTimeout     time.Duration
	concurrency      int
	groupConcurrency int
}

// Option configures a Resolver
type Option func(*Resolver)

// WithFetchTimeout bounds each preview and metadata fetch. A fetch that runs
// out of time degrades the asset to no_preview.
func WithFetchTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

// WithConcurrency sets how many assets of one group are scored at once
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithGroupConcurrency sets how many groups ResolveAll works on at once
func WithGroupConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.groupConcurrency = n
		}
	}
}

// WithMetricsCalculator replaces the default metrics calculator
func WithMetricsCalculator(c analyzer.MetricsCalculator) Option {
	return func(r *Resolver) {
		if c != nil {
			r.calculator = c
		}
	}
}

// New creates a resolver. metadata may be nil, in which case face and tag
// scores are always 0.
func New(assets AssetSource, metadata MetadataSource, dec decoder.Decoder, weights scoring.ScoreWeights, opts ...Option) (*Resolver, error) {
	if assets == nil {
		return nil, errors.New("resolver: asset source is required")
	}
	if dec == nil {
		return nil, errors.New("resolver: decoder is required")
	}
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}

	r := &Resolver{
		assets:           assets,
		metadata:         metadata,
		decoder:          dec,
		calculator:       analyzer.NewMetricsCalculator(),
		blender:          scoring.NewBlender(weights),
		fetchTimeout:     15 * time.Second,
		concurrency:      runtime.NumCPU(),
		groupConcurrency: 2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Weights returns the weight vector the resolver blends with
func (r *Resolver) Weights() scoring.ScoreWeights {
	return r.blender.Weights()
}

// Resolve scores every member of the group and splits it into winner and
// alternates. It reports false for a group without assets. Per-asset
// failures are recorded in the scores and never abort the group.
func (r *Resolver) Resolve(ctx context.Context, group DuplicateGroup) (ResolutionResult, bool) {
	group = group.Normalize()
	if len(group.AssetIDs) == 0 {
		return ResolutionResult{}, false
	}

	scores := make([]AssetScore, len(group.AssetIDs))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, id := range group.AssetIDs {
		g.Go(func() error {
			scores[i] = r.ScoreAsset(ctx, id)
			return nil // never fail the group
		})
	}
	_ = g.Wait()

	return rank(group.ID, scores), true
}

// ResolvedFunc is called once per resolved group with the time the group
// took. Calls may come from several goroutines at once.
type ResolvedFunc func(result ResolutionResult, elapsed time.Duration)

// ResolveAll resolves groups concurrently. Results keep the enumeration order
// of groups; empty groups produce no result.
func (r *Resolver) ResolveAll(ctx context.Context, groups []DuplicateGroup) ([]ResolutionResult, error) {
	return r.ResolveAllFunc(ctx, groups, nil)
}

// ResolveAllFunc is ResolveAll with a callback for every resolved group
func (r *Resolver) ResolveAllFunc(ctx context.Context, groups []DuplicateGroup, fn ResolvedFunc) ([]ResolutionResult, error) {
	type slot struct {
		result ResolutionResult
		ok     bool
	}
	slots := make([]slot, len(groups))

	var g errgroup.Group
	g.SetLimit(r.groupConcurrency)
	for i, group := range groups {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			start := time.Now()
			res, ok := r.Resolve(ctx, group)
			slots[i] = slot{result: res, ok: ok}
			if ok && fn != nil {
				fn(res, time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]ResolutionResult, 0, len(groups))
	for _, s := range slots {
		if s.ok {
			results = append(results, s.result)
		}
	}
	return results, nil
}

// ScoreAsset fetches, decodes and scores a single asset
func (r *Resolver) ScoreAsset(ctx context.Context, assetID string) AssetScore {
	log := logger.WithField("asset_id", assetID)

	fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	data, err := r.assets.FetchPreview(fetchCtx, assetID)
	cancel()
	if err != nil {
		log.WithError(err).WithField("reason", ReasonNoPreview).Warn("Asset preview unavailable")
		return failedScore(assetID, ReasonNoPreview)
	}

	return r.scoreBytes(ctx, assetID, data, func(ctx context.Context) (scoring.Metadata, error) {
		if r.metadata == nil {
			return scoring.Metadata{}, apperrors.ErrMetadataUnavailable
		}
		metaCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
		return r.metadata.FetchMetadata(metaCtx, assetID)
	})
}

// ScoreBytes scores already fetched preview bytes with caller-supplied
// metadata. A nil meta counts as absent metadata.
func (r *Resolver) ScoreBytes(ctx context.Context, assetID string, data []byte, meta *scoring.Metadata) AssetScore {
	return r.scoreBytes(ctx, assetID, data, func(context.Context) (scoring.Metadata, error) {
		if meta == nil {
			return scoring.Metadata{}, apperrors.ErrMetadataUnavailable
		}
		return *meta, nil
	})
}

type metadataFunc func(ctx context.Context) (scoring.Metadata, error)

type metadataResult struct {
	meta scoring.Metadata
	err  error
}

func (r *Resolver) scoreBytes(ctx context.Context, assetID string, data []byte, fetchMeta metadataFunc) AssetScore {
	log := logger.WithField("asset_id", assetID)

	buf, err := r.decoder.Decode(data)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidBuffer) {
			log.WithError(err).Error("Decoder returned an invalid pixel buffer")
			return failedScore(assetID, ReasonInvalidBuffer)
		}
		log.WithError(err).WithField("reason", ReasonDecodeFailed).Warn("Asset preview could not be decoded")
		return failedScore(assetID, ReasonDecodeFailed)
	}

	// Metadata is fetched while the pixel metrics are computed
	metaCh := make(chan metadataResult, 1)
	go func() {
		meta, err := fetchMeta(ctx)
		metaCh <- metadataResult{meta: meta, err: err}
	}()

	lum, err := analyzer.ToLuminance(buf)
	if err != nil {
		<-metaCh
		log.WithError(err).Error("Decoder returned an invalid pixel buffer")
		return failedScore(assetID, ReasonInvalidBuffer)
	}
	metrics := r.calculator.Analyze(lum)

	mr := <-metaCh
	var metaScores scoring.MetadataScores
	metadataMissing := mr.err != nil
	if metadataMissing {
		if !errors.Is(mr.err, apperrors.ErrMetadataUnavailable) {
			log.WithError(mr.err).Warn("Asset metadata unavailable, scoring without it")
		}
	} else {
		metaScores = scoring.ScoreMetadata(mr.meta)
	}

	blend := r.blender.Blend(scoring.Components{
		Sharpness:   metrics.Sharpness,
		Exposure:    metrics.Exposure,
		Composition: metrics.Composition,
		Face:        metaScores.Face,
		Tags:        metaScores.Tags,
	})

	log.WithFields(logrus.Fields{
		"total":       blend.Total,
		"sharpness":   metrics.Sharpness,
		"exposure":    metrics.Exposure,
		"composition": metrics.Composition,
		"face":        metaScores.Face,
		"tags":        metaScores.Tags,
	}).Debug("Asset scored")

	return AssetScore{
		AssetID: assetID,
		Total:   blend.Total,
		Breakdown: Breakdown{
			Sharpness:         metrics.Sharpness,
			Exposure:          metrics.Exposure,
			Composition:       metrics.Composition,
			ExposureComposite: blend.ExposureComposite,
			Face:              metaScores.Face,
			Tags:              metaScores.Tags,
			LaplacianVariance: metrics.LaplacianVariance,
			MetadataMissing:   metadataMissing,
		},
	}
}

// rank orders scores by total, highest first. Ties keep enumeration order.
func rank(groupID string, scores []AssetScore) ResolutionResult {
	ranked := make([]AssetScore, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total > ranked[j].Total
	})

	degraded := true
	for _, s := range ranked {
		if s.Total != 0 {
			degraded = false
			break
		}
	}

	alternates := make([]string, 0, len(ranked)-1)
	for _, s := range ranked[1:] {
		alternates = append(alternates, s.AssetID)
	}

	return ResolutionResult{
		GroupID:    groupID,
		Winner:     ranked[0].AssetID,
		Alternates: alternates,
		Scores:     ranked,
		Degraded:   degraded,
	}
}
