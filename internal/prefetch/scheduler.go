// Package prefetch keeps the next few assets warm while the user swipes.
// The walker runs at background priority off the interactive path, decodes
// upcoming images eagerly, acquires upcoming videos under a concurrency cap
// and preheats metadata for a wider horizon.
package prefetch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/mediacache"
)

// Config sets the walker's depths and caps.
type Config struct {
	Ahead            int // Assets decoded eagerly past the cursor
	Wide             int // Metadata preheat horizon
	VideoConcurrency int // Concurrent video acquisitions
}

// ModeConfig returns the tuning for the active category: short-form mode
// preloads deeper because short videos burn through faster.
func ModeConfig(shortForm bool) Config {
	if shortForm {
		return Config{Ahead: 4, Wide: 8, VideoConcurrency: 2}
	}
	return Config{Ahead: 2, Wide: 8, VideoConcurrency: 2}
}

// Scheduler walks upcoming assets and requests decodes. Schedule is
// idempotent: a call while a walk is in flight is a no-op.
type Scheduler struct {
	media  domain.MediaStore
	cache  *mediacache.Cache
	logger *slog.Logger

	targetSize int
	yield      time.Duration

	mu             sync.Mutex
	cfg            Config
	running        bool
	restart        bool
	inflight       map[string]struct{}
	videoSem       chan struct{}
	videoPreload   bool
	content        domain.ContentFilter
	networkAllowed bool

	videoWG sync.WaitGroup
}

// New creates a scheduler over the cache and media store.
func New(media domain.MediaStore, cache *mediacache.Cache, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.VideoConcurrency <= 0 {
		cfg.VideoConcurrency = 1
	}
	return &Scheduler{
		media:        media,
		cache:        cache,
		logger:       logger,
		cfg:          cfg,
		targetSize:   512,
		yield:        10 * time.Millisecond,
		inflight:     make(map[string]struct{}),
		videoSem:     make(chan struct{}, cfg.VideoConcurrency),
		videoPreload: true,
		content:      domain.ContentAll,
	}
}

// Configure swaps the walker tuning (on mode change) and flags a restart if
// a walk is in flight.
func (s *Scheduler) Configure(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.VideoConcurrency > 0 && cfg.VideoConcurrency != cap(s.videoSem) {
		s.videoSem = make(chan struct{}, cfg.VideoConcurrency)
	}
	s.cfg = cfg
	if s.running {
		s.restart = true
	}
}

// SetVideoPreload toggles whether upcoming videos are acquired ahead of
// navigation.
func (s *Scheduler) SetVideoPreload(enabled bool) {
	s.mu.Lock()
	s.videoPreload = enabled
	s.mu.Unlock()
}

// SetContent restricts preloading to the active content filter.
func (s *Scheduler) SetContent(content domain.ContentFilter) {
	s.mu.Lock()
	s.content = content
	s.mu.Unlock()
}

// SetNetworkAllowed toggles network use for prefetch decodes.
func (s *Scheduler) SetNetworkAllowed(allowed bool) {
	s.mu.Lock()
	s.networkAllowed = allowed
	s.mu.Unlock()
}

// Running reports whether a walk is in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule walks the sequence from the position after fromIndex. Returns
// false without doing anything when a walk is already in flight. The caller
// runs it off the interactive path; it blocks until the walk (and any
// restart it absorbed) completes.
func (s *Scheduler) Schedule(ctx context.Context, fromIndex int, seq []domain.Asset) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.videoWG.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		s.walk(ctx, fromIndex, seq)

		s.mu.Lock()
		again := s.restart
		s.restart = false
		s.mu.Unlock()
		if !again || ctx.Err() != nil {
			return true
		}
	}
}

func (s *Scheduler) walk(ctx context.Context, fromIndex int, seq []domain.Asset) {
	s.mu.Lock()
	cfg := s.cfg
	content := s.content
	videoPreload := s.videoPreload
	networkAllowed := s.networkAllowed
	s.mu.Unlock()

	start := fromIndex + 1
	for i := start; i < len(seq) && i < start+cfg.Wide; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		asset := seq[i]

		// Metadata prefetch is cheap and always wanted.
		if _, ok := s.cache.Metadata(asset.ID); !ok {
			if meta, err := s.media.RequestMetadata(ctx, asset.ID); err == nil {
				s.cache.PutMetadata(asset.ID, meta)
			}
		}

		if i-start < cfg.Ahead {
			switch asset.Kind {
			case domain.KindImage:
				s.prefetchImage(ctx, asset.ID, networkAllowed)
			case domain.KindVideo:
				if videoPreload && content.Allows(domain.KindVideo) {
					s.prefetchVideo(ctx, asset.ID, networkAllowed)
				}
			}
		}

		// Yield between items so the walk never starves the interactive
		// path.
		if s.yield > 0 {
			time.Sleep(s.yield)
		}
	}
}

// claim inserts id into the in-flight set; returns false when the id is
// already cached or already being fetched.
func (s *Scheduler) claim(id string, cached bool) bool {
	if cached {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) prefetchImage(ctx context.Context, id string, networkAllowed bool) {
	_, cached := s.cache.Image(id)
	if !s.claim(id, cached) {
		return
	}
	defer s.release(id)

	result, err := s.media.RequestImage(ctx, id, s.targetSize, domain.QualityFast, networkAllowed)
	if err != nil || result.Image == nil {
		s.logger.Debug("image prefetch failed", "id", id, "error", err)
		return
	}
	s.cache.PutImage(id, result)
}

func (s *Scheduler) prefetchVideo(ctx context.Context, id string, networkAllowed bool) {
	_, cached := s.cache.Video(id)
	if !s.claim(id, cached) {
		return
	}

	select {
	case s.videoSem <- struct{}{}:
	case <-ctx.Done():
		s.release(id)
		return
	}

	s.videoWG.Add(1)
	go func() {
		defer func() {
			<-s.videoSem
			s.release(id)
			s.videoWG.Done()
		}()

		handle, err := s.media.RequestVideo(ctx, id, networkAllowed)
		if err != nil || handle == nil {
			s.logger.Debug("video prefetch failed", "id", id, "error", err)
			return
		}
		s.cache.PutVideo(id, handle)
	}()
}
