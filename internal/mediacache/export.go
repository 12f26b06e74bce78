package mediacache

import (
	"log/slog"
	"os"
	"sync"
)

const defaultExportCap = 4

// ExportCache tracks video files exported to a temporary directory for
// share hand-off. Capped; evicting the oldest entry deletes its file.
type ExportCache struct {
	logger *slog.Logger

	mu    sync.Mutex
	cap   int
	order []string
	paths map[string]string
}

// NewExportCache creates an export cache with the given file cap (<= 0 uses
// the default of 4).
func NewExportCache(cap int, logger *slog.Logger) *ExportCache {
	if cap <= 0 {
		cap = defaultExportCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportCache{
		logger: logger,
		cap:    cap,
		paths:  make(map[string]string),
	}
}

func (e *ExportCache) setCap(cap int) {
	if cap <= 0 {
		return
	}
	e.mu.Lock()
	e.cap = cap
	e.mu.Unlock()
}

// Path returns the exported file path for an asset, if present.
func (e *ExportCache) Path(id string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.paths[id]
	return p, ok
}

// Add records an exported file, evicting (and deleting) the oldest entries
// while the cap is exceeded.
func (e *ExportCache) Add(id, path string) {
	var evicted []string

	e.mu.Lock()
	if _, ok := e.paths[id]; !ok {
		e.order = append(e.order, id)
	}
	e.paths[id] = path
	for len(e.order) > e.cap {
		oldest := e.order[0]
		e.order = e.order[1:]
		evicted = append(evicted, e.paths[oldest])
		delete(e.paths, oldest)
	}
	e.mu.Unlock()

	for _, p := range evicted {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to delete evicted export", "path", p, "error", err)
		}
	}
}

// Clear deletes every exported file.
func (e *ExportCache) Clear() {
	e.mu.Lock()
	paths := make([]string, 0, len(e.paths))
	for _, p := range e.paths {
		paths = append(paths, p)
	}
	e.order = nil
	e.paths = make(map[string]string)
	e.mu.Unlock()

	for _, p := range paths {
		os.Remove(p)
	}
}
