// Package mediacache holds decoded media for the swipe flow: image entries
// with degraded/high-quality state, acquired video handles, and the cheap
// metadata cache. Eviction is centralized in AdvanceWindow, which keys the
// whole cache to a sliding keep window over the filtered sequence.
package mediacache

import (
	"log/slog"
	"sync"

	"github.com/mmcdole/sweep/internal/domain"
)

const (
	// metadataCap / metadataLow bound the metadata cache: trimmed from cap
	// to low keeping the most recently touched entries.
	defaultMetadataCap = 500
	defaultMetadataLow = 300
)

// ImageEntry is a cached decoded image. Exclusively owned by the cache;
// promoted in place when a higher-quality decode completes.
type ImageEntry struct {
	Result domain.ImageResult
}

type metaEntry struct {
	meta    domain.AssetMetadata
	touched uint64
}

// Cache is the in-memory media cache. Safe for concurrent use; background
// decode completions land here directly.
type Cache struct {
	media  domain.MediaStore
	logger *slog.Logger

	mu        sync.Mutex
	images    map[string]ImageEntry
	videos    map[string]domain.VideoHandle
	meta      map[string]*metaEntry
	preheated map[string]struct{}
	displayed string
	clock     uint64 // Monotonic touch counter for metadata recency

	exports *ExportCache

	metadataCap int
	metadataLow int
}

// New creates a media cache over the given store. The store reference is
// used only to pair read-ahead preheat start/stop calls with the window.
func New(media domain.MediaStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		media:       media,
		logger:      logger,
		images:      make(map[string]ImageEntry),
		videos:      make(map[string]domain.VideoHandle),
		meta:        make(map[string]*metaEntry),
		preheated:   make(map[string]struct{}),
		metadataCap: defaultMetadataCap,
		metadataLow: defaultMetadataLow,
		exports:     NewExportCache(0, logger),
	}
}

// Exports returns the cache of video files written out for share hand-off.
func (c *Cache) Exports() *ExportCache {
	return c.exports
}

// SetCaps overrides the metadata and export cache caps from configuration.
// Zero keeps the default for that cap. The metadata low-water mark scales
// with the cap.
func (c *Cache) SetCaps(metadataCap, exportCap int) {
	c.mu.Lock()
	if metadataCap > 0 {
		c.metadataCap = metadataCap
		c.metadataLow = metadataCap * defaultMetadataLow / defaultMetadataCap
		if c.metadataLow < 1 {
			c.metadataLow = 1
		}
	}
	c.mu.Unlock()
	c.exports.setCap(exportCap)
}

// SetDisplayed records the asset currently on screen. Promotion decisions
// depend on it.
func (c *Cache) SetDisplayed(id string) {
	c.mu.Lock()
	c.displayed = id
	c.mu.Unlock()
}

// Image returns the cached image entry for id.
func (c *Cache) Image(id string) (ImageEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.images[id]
	return e, ok
}

// PutImage stores a decoded image entry.
func (c *Cache) PutImage(id string, result domain.ImageResult) {
	c.mu.Lock()
	c.images[id] = ImageEntry{Result: result}
	c.mu.Unlock()
}

// Promote replaces id's entry with a higher-quality result, but only while
// the identifier is still of interest: currently displayed or still warm in
// the cache. Stale completions for evicted identifiers are dropped so a late
// decode can never overwrite a different, newer asset's slot.
func (c *Cache) Promote(id string, result domain.ImageResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, warm := c.images[id]
	if !warm && c.displayed != id {
		c.logger.Debug("dropping stale promotion", "id", id)
		return false
	}
	c.images[id] = ImageEntry{Result: result}
	return true
}

// Video returns the cached decode handle for id.
func (c *Cache) Video(id string) (domain.VideoHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.videos[id]
	return h, ok
}

// PutVideo stores an acquired video handle. A handle already present for the
// same id is released first.
func (c *Cache) PutVideo(id string, handle domain.VideoHandle) {
	c.mu.Lock()
	prev, ok := c.videos[id]
	c.videos[id] = handle
	c.mu.Unlock()
	if ok && prev != handle {
		prev.Release()
	}
}

// TakeVideo removes and returns the decode handle for id, transferring
// ownership to the caller (the playback session).
func (c *Cache) TakeVideo(id string) (domain.VideoHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.videos[id]
	if ok {
		delete(c.videos, id)
	}
	return h, ok
}

// Metadata returns cached metadata for id, refreshing its recency.
func (c *Cache) Metadata(id string) (domain.AssetMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.meta[id]
	if !ok {
		return domain.AssetMetadata{}, false
	}
	c.clock++
	e.touched = c.clock
	return e.meta, true
}

// PutMetadata stores metadata for id, trimming the cache when it overflows.
func (c *Cache) PutMetadata(id string, meta domain.AssetMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock++
	c.meta[id] = &metaEntry{meta: meta, touched: c.clock}
	if len(c.meta) > c.metadataCap {
		c.trimMetadataLocked()
	}
}

// trimMetadataLocked drops the least recently touched entries down to the
// low-water mark.
func (c *Cache) trimMetadataLocked() {
	type aged struct {
		id      string
		touched uint64
	}
	entries := make([]aged, 0, len(c.meta))
	for id, e := range c.meta {
		entries = append(entries, aged{id: id, touched: e.touched})
	}
	// Selection by partial sort is not worth it at this size.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].touched < entries[j-1].touched; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	drop := len(c.meta) - c.metadataLow
	for _, e := range entries[:drop] {
		delete(c.meta, e.id)
	}
}

// AdvanceWindow recomputes the keep window after a position advance and
// evicts everything outside it. keep is the identifier set
// [currentIndex, currentIndex+N) over the global filtered sequence. The
// backing store's read-ahead cache is told to stop preheating evicted
// identifiers; preheat start/stop calls stay paired.
func (c *Cache) AdvanceWindow(keep []string) {
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}

	var released []domain.VideoHandle
	var stopped, started []string

	c.mu.Lock()
	for id := range c.images {
		if _, ok := keepSet[id]; !ok {
			delete(c.images, id)
		}
	}
	for id, h := range c.videos {
		if _, ok := keepSet[id]; !ok {
			released = append(released, h)
			delete(c.videos, id)
		}
	}
	for id := range c.preheated {
		if _, ok := keepSet[id]; !ok {
			stopped = append(stopped, id)
			delete(c.preheated, id)
		}
	}
	for _, id := range keep {
		if _, ok := c.preheated[id]; !ok {
			started = append(started, id)
			c.preheated[id] = struct{}{}
		}
	}
	c.mu.Unlock()

	for _, h := range released {
		h.Release()
	}
	if len(stopped) > 0 {
		c.media.StopPreheat(stopped)
	}
	if len(started) > 0 {
		c.media.StartPreheat(started)
	}
}

// Clear evicts everything and stops all outstanding preheats. Used on filter
// change and session teardown.
func (c *Cache) Clear() {
	c.AdvanceWindow(nil)
	c.mu.Lock()
	c.meta = make(map[string]*metaEntry)
	c.displayed = ""
	c.mu.Unlock()
	c.exports.Clear()
}

// Len reports current image and video cache sizes.
func (c *Cache) Len() (images, videos int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.images), len(c.videos)
}

// MetadataLen reports the metadata cache size.
func (c *Cache) MetadataLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.meta)
}
