package geocode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
)

const (
	defaultMaxRequests = 45
	defaultWindow      = time.Minute
)

// Service fronts a Geocoder with grid bucketing, a bounded result cache and
// client-side rate limiting. Over-limit requests are delayed, never dropped.
type Service struct {
	geocoder domain.Geocoder
	cache    *placeCache
	logger   *slog.Logger

	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu   sync.Mutex
	sent []time.Time
}

// Options tunes the service; zero values use the defaults.
type Options struct {
	MaxRequests int
	Window      time.Duration
	CacheSize   int
}

// NewService wraps a geocoder.
func NewService(geocoder domain.Geocoder, opts Options, logger *slog.Logger) *Service {
	if opts.MaxRequests <= 0 {
		opts.MaxRequests = defaultMaxRequests
	}
	if opts.Window <= 0 {
		opts.Window = defaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		geocoder:    geocoder,
		cache:       newPlaceCache(opts.CacheSize),
		logger:      logger,
		maxRequests: opts.MaxRequests,
		window:      opts.Window,
		now:         time.Now,
	}
}

// Cached returns the resolved place for a coordinate if its grid cell has
// already been resolved, without touching the service.
func (s *Service) Cached(c domain.Coordinate) (string, bool) {
	return s.cache.get(gridKey(c))
}

// Resolve returns the place description for a coordinate, consulting the
// cache first. A miss dispatches to the geocoder once the rolling rate
// window has room; callers run this off the interactive path.
func (s *Service) Resolve(ctx context.Context, c domain.Coordinate) (string, error) {
	key := gridKey(c)
	if place, ok := s.cache.get(key); ok {
		return place, nil
	}

	if err := s.waitForSlot(ctx); err != nil {
		return "", err
	}

	place, err := s.geocoder.ReverseGeocode(ctx, c)
	if err != nil {
		s.logger.Debug("reverse geocode failed", "key", key, "error", err)
		return "", err
	}
	s.cache.put(key, place)
	return place, nil
}

// waitForSlot delays until the rolling window has capacity, then claims a
// slot.
func (s *Service) waitForSlot(ctx context.Context) error {
	for {
		s.mu.Lock()
		now := s.now()
		cutoff := now.Add(-s.window)
		keep := s.sent[:0]
		for _, t := range s.sent {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		s.sent = keep

		if len(s.sent) < s.maxRequests {
			s.sent = append(s.sent, now)
			s.mu.Unlock()
			return nil
		}
		wait := s.sent[0].Add(s.window).Sub(now)
		s.mu.Unlock()

		s.logger.Debug("geocode rate window full, delaying", "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// CacheLen reports the number of cached grid cells.
func (s *Service) CacheLen() int {
	return s.cache.len()
}
