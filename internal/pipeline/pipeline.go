// Package pipeline produces the filtered, batched asset sequence the swipe
// flow consumes. It owns ordering policy (shuffle, reservoir sampling for
// very large sets, oldest-first for screenshots), processed-set exclusion
// and batch slicing with self-healing index recomputation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/store"
)

const (
	countTTL = 30 * time.Second

	// scanTTL bounds how long a short-form scan snapshot stays valid before
	// the library is re-scanned for newly added short videos.
	scanTTL = 24 * time.Hour
)

// Config tunes batching and large-library sampling.
type Config struct {
	BatchSize      int
	SampleMin      int     // Sampling threshold floor
	SampleMax      int     // Sampling threshold ceiling
	SampleFraction float64 // Fraction of set size between floor and ceiling
}

// DefaultConfig returns the stock pipeline tuning.
func DefaultConfig() Config {
	return Config{
		BatchSize:      domain.DefaultBatchSize,
		SampleMin:      2000,
		SampleMax:      5000,
		SampleFraction: 0.10,
	}
}

// Pipeline enumerates the media store and slices the result into batches.
type Pipeline struct {
	media  domain.MediaStore
	store  *store.SwipeStore
	logger *slog.Logger
	cfg    Config

	mu       sync.Mutex
	rng      *rand.Rand
	sequence []domain.Asset
	filter   domain.Filter
	content  domain.ContentFilter

	// counts caches per-filter totals with a short TTL, flushed on any
	// decision.
	counts *gocache.Cache

	scanMu      sync.Mutex
	scanRunning bool
	scanCancel  context.CancelFunc
	scanFresh   *gocache.Cache
}

// New creates a pipeline over the given media store and durable store.
func New(media domain.MediaStore, st *store.SwipeStore, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = domain.DefaultBatchSize
	}
	return &Pipeline{
		media:     media,
		store:     st,
		logger:    logger,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		counts:    gocache.New(countTTL, time.Minute),
		scanFresh: gocache.New(scanTTL, time.Hour),
	}
}

// Filter returns the active category filter (nil before the first Refresh).
func (p *Pipeline) Filter() domain.Filter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.filter
}

// Sequence returns a copy of the current filtered asset sequence.
func (p *Pipeline) Sequence() []domain.Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Asset(nil), p.sequence...)
}

// Refresh rebuilds the filtered sequence for the given filters and returns
// its length. A zero length means the category is complete (distinct from an
// empty library, which Refresh reports via domain.ErrAssetNotFound).
func (p *Pipeline) Refresh(ctx context.Context, content domain.ContentFilter, f domain.Filter) (int, error) {
	assets, err := p.enumerate(ctx, content, f)
	if err != nil {
		return 0, err
	}

	ordered := p.order(assets, f)

	p.mu.Lock()
	p.sequence = ordered
	p.filter = f
	p.content = content
	p.mu.Unlock()

	p.logger.Debug("sequence refreshed", "filter", f.Key(), "count", len(ordered))
	return len(ordered), nil
}

// enumerate lists, predicate-filters and processed-excludes the library.
func (p *Pipeline) enumerate(ctx context.Context, content domain.ContentFilter, f domain.Filter) ([]domain.Asset, error) {
	all, err := p.media.Enumerate(ctx)
	if err != nil {
		p.logger.Error("failed to enumerate media store", "error", err)
		return nil, err
	}
	if len(all) == 0 {
		return nil, domain.ErrAssetNotFound
	}

	// The short-form category reads its membership from the persisted scan
	// rather than re-probing durations on the interactive path.
	if _, ok := f.(domain.ShortForm); ok {
		return p.shortFormAssets(all)
	}

	now := time.Now()
	filterKey := f.Key()
	matched := make([]domain.Asset, 0, len(all))
	for _, a := range all {
		if !content.Allows(a.Kind) {
			continue
		}
		if !f.Matches(a, now) {
			continue
		}
		if p.store.IsProcessed(filterKey, a.ID) {
			continue
		}
		matched = append(matched, a)
	}
	return matched, nil
}

// order applies the category's ordering policy.
func (p *Pipeline) order(assets []domain.Asset, f domain.Filter) []domain.Asset {
	if _, ok := f.(domain.Screenshots); ok {
		// Oldest first instead of shuffled: old screenshots are the most
		// likely delete candidates.
		sorted := append([]domain.Asset(nil), assets...)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		})
		return sorted
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	threshold := p.sampleThreshold(len(assets))
	if len(assets) > threshold {
		// Reservoir-sample a cap-sized subset, then shuffle only that
		// subset. Bounds shuffle cost on very large libraries.
		sampled := reservoirSample(p.rng, assets, threshold)
		p.rng.Shuffle(len(sampled), func(i, j int) {
			sampled[i], sampled[j] = sampled[j], sampled[i]
		})
		return sampled
	}

	shuffled := append([]domain.Asset(nil), assets...)
	p.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}

// sampleThreshold returns the dynamic cap above which reservoir sampling
// kicks in: 10% of the set, clamped to [SampleMin, SampleMax].
func (p *Pipeline) sampleThreshold(n int) int {
	threshold := int(float64(n) * p.cfg.SampleFraction)
	if threshold < p.cfg.SampleMin {
		threshold = p.cfg.SampleMin
	}
	if threshold > p.cfg.SampleMax {
		threshold = p.cfg.SampleMax
	}
	return threshold
}

// NextBatch slices the batch at batchIndex out of the current sequence,
// re-excluding anything processed since the last Refresh. When the index has
// drifted past the sequence it is recomputed from processedCount/batchSize
// before the category is declared complete; a batch emptied entirely by
// post-filter exclusion triggers one full re-filter. The possibly corrected
// batch index is returned alongside the batch.
func (p *Pipeline) NextBatch(ctx context.Context, batchIndex int) (domain.Batch, int, error) {
	batch, idx, err := p.sliceBatch(batchIndex)
	if err == nil && len(batch.Assets) > 0 {
		return batch, idx, nil
	}
	if err != nil && err != domain.ErrCategoryComplete {
		return domain.Batch{}, batchIndex, err
	}

	// Either drift or full post-filter exclusion: re-filter once and retry.
	p.mu.Lock()
	content, f := p.content, p.filter
	p.mu.Unlock()
	if f == nil {
		return domain.Batch{}, batchIndex, domain.ErrCategoryComplete
	}
	if _, err := p.Refresh(ctx, content, f); err != nil {
		return domain.Batch{}, batchIndex, err
	}

	// The refreshed sequence contains only undecided assets, so the cursor
	// restarts at the front.
	batch, idx, err = p.sliceBatch(0)
	if err != nil {
		return domain.Batch{}, 0, err
	}
	return batch, idx, nil
}

func (p *Pipeline) sliceBatch(batchIndex int) (domain.Batch, int, error) {
	p.mu.Lock()
	seq := p.sequence
	f := p.filter
	size := p.cfg.BatchSize
	p.mu.Unlock()

	if f == nil || len(seq) == 0 {
		return domain.Batch{}, batchIndex, domain.ErrCategoryComplete
	}

	start := batchIndex * size
	if start >= len(seq) {
		// Self-heal drift caused by concurrent filtering before declaring
		// the filter complete.
		batchIndex = p.store.ProcessedCount(f.Key()) / size
		start = batchIndex * size
		if start >= len(seq) {
			return domain.Batch{}, batchIndex, domain.ErrCategoryComplete
		}
	}

	end := start + size
	if end > len(seq) {
		end = len(seq)
	}

	filterKey := f.Key()
	assets := make([]domain.Asset, 0, end-start)
	for _, a := range seq[start:end] {
		if p.store.IsProcessed(filterKey, a.ID) {
			continue
		}
		assets = append(assets, a)
	}
	if len(assets) == 0 {
		return domain.Batch{}, batchIndex, domain.ErrCategoryComplete
	}

	return domain.Batch{Index: batchIndex, Assets: assets}, batchIndex, nil
}

// Count returns how many undecided assets match the filter. Results are
// cached briefly and flushed on any decision via InvalidateCounts.
func (p *Pipeline) Count(ctx context.Context, content domain.ContentFilter, f domain.Filter) (int, error) {
	// Keyed by filter and content kind: the same category counts
	// differently under photos-only vs videos-only.
	key := fmt.Sprintf("%s/%d", f.Key(), content)
	if cached, ok := p.counts.Get(key); ok {
		return cached.(int), nil
	}

	assets, err := p.enumerate(ctx, content, f)
	if err != nil {
		return 0, err
	}
	p.counts.SetDefault(key, len(assets))
	return len(assets), nil
}

// InvalidateCounts drops every cached filter count.
func (p *Pipeline) InvalidateCounts() {
	p.counts.Flush()
}

// reservoirSample selects k items uniformly at random from assets.
func reservoirSample(rng *rand.Rand, assets []domain.Asset, k int) []domain.Asset {
	if len(assets) <= k {
		return append([]domain.Asset(nil), assets...)
	}
	sample := append([]domain.Asset(nil), assets[:k]...)
	for i := k; i < len(assets); i++ {
		j := rng.Intn(i + 1)
		if j < k {
			sample[j] = assets[i]
		}
	}
	return sample
}
