// Package photodir implements the media store over a local photo directory.
// Assets are media files discovered under one root; identity is the path
// relative to the root. Deletion is a move into a trash directory under the
// root so a batch can be rolled back if any single move fails.
package photodir

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nfnt/resize"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/store"
)

// TrashDirName is where deleted assets are moved, relative to the root.
const TrashDirName = ".sweep-trash"

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".heic": true, ".webp": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".m4v": true, ".webm": true, ".mkv": true,
	".avi": true,
}

// DurationProber reads a video file's runtime. Optional; without one,
// durations stay zero until the short-form scan probes them.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Library is a MediaStore over one local directory tree.
type Library struct {
	root   string
	swipes *store.SwipeStore
	probe  DurationProber
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	preheat map[string]int
}

type entry struct {
	path  string
	asset domain.Asset
}

// Open validates the root directory and creates a library over it.
func Open(root string, swipes *store.SwipeStore, probe DurationProber, logger *slog.Logger) (*Library, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(root)
	if err != nil {
		if os.IsPermission(err) {
			return nil, domain.ErrAccessDenied
		}
		return nil, fmt.Errorf("opening library %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library path %s is not a directory", root)
	}
	return &Library{
		root:    root,
		swipes:  swipes,
		probe:   probe,
		logger:  logger,
		entries: make(map[string]*entry),
		preheat: make(map[string]int),
	}, nil
}

// classify maps a filename to a media kind by extension.
func classify(name string) (domain.MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if imageExts[ext] {
		return domain.KindImage, true
	}
	if videoExts[ext] {
		return domain.KindVideo, true
	}
	return 0, false
}

// isScreenshotName applies the filename heuristic used by most platforms'
// screen capture tools.
func isScreenshotName(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "screenshot") || strings.Contains(lower, "screen shot")
}

// Enumerate walks the root and returns every recognized media file. Hidden
// directories and the trash are skipped.
func (l *Library) Enumerate(ctx context.Context) ([]domain.Asset, error) {
	found := make(map[string]*entry)
	var assets []domain.Asset

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				return domain.ErrAccessDenied
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != l.root {
				return filepath.SkipDir
			}
			return nil
		}

		kind, ok := classify(d.Name())
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}

		asset := domain.Asset{
			ID:         rel,
			Kind:       kind,
			CreatedAt:  info.ModTime(),
			FileSize:   info.Size(),
			Favorite:   l.swipes != nil && l.swipes.IsFavorite(rel),
			Screenshot: kind == domain.KindImage && isScreenshotName(d.Name()),
		}
		found[rel] = &entry{path: path, asset: asset}
		assets = append(assets, asset)
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.entries = found
	l.mu.Unlock()

	l.logger.Info("library enumerated", "root", l.root, "assets", len(assets))
	return assets, nil
}

func (l *Library) lookup(id string) (*entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e, ok
}

// RequestImage decodes an image file. QualityFast downsamples to targetSize
// on the longer edge and flags the result degraded; QualityHigh returns the
// full decode. Local files never need the network.
func (l *Library) RequestImage(ctx context.Context, id string, targetSize int, quality domain.ImageQuality, _ bool) (domain.ImageResult, error) {
	e, ok := l.lookup(id)
	if !ok {
		return domain.ImageResult{}, domain.ErrAssetNotFound
	}
	if err := ctx.Err(); err != nil {
		return domain.ImageResult{}, err
	}

	f, err := os.Open(e.path)
	if err != nil {
		if os.IsPermission(err) {
			return domain.ImageResult{}, domain.ErrAccessDenied
		}
		return domain.ImageResult{}, fmt.Errorf("opening %s: %w", id, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return domain.ImageResult{}, fmt.Errorf("decoding %s: %w", id, err)
	}

	if quality == domain.QualityFast && targetSize > 0 {
		img = resize.Thumbnail(uint(targetSize), uint(targetSize), img, resize.Bilinear)
		return domain.ImageResult{Image: img, Degraded: true}, nil
	}
	return domain.ImageResult{Image: img}, nil
}

// fileHandle is a decode handle over a plain local file. Nothing to free.
type fileHandle struct {
	path string
}

func (h *fileHandle) Path() string { return h.path }
func (h *fileHandle) Release()     {}

// RequestVideo returns a playable handle for a local video file.
func (l *Library) RequestVideo(ctx context.Context, id string, _ bool) (domain.VideoHandle, error) {
	e, ok := l.lookup(id)
	if !ok {
		return nil, domain.ErrAssetNotFound
	}
	if e.asset.Kind != domain.KindVideo {
		return nil, domain.ErrAssetNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(e.path); err != nil {
		return nil, domain.ErrAssetNotFound
	}
	return &fileHandle{path: e.path}, nil
}

// RequestMetadata serves the cheap per-asset properties. Video durations are
// probed lazily on first request when a prober is configured.
func (l *Library) RequestMetadata(ctx context.Context, id string) (domain.AssetMetadata, error) {
	e, ok := l.lookup(id)
	if !ok {
		return domain.AssetMetadata{}, domain.ErrAssetNotFound
	}

	meta := domain.AssetMetadata{
		CreatedAt:  e.asset.CreatedAt,
		Coordinate: e.asset.Coordinate,
		Favorite:   e.asset.Favorite,
		Duration:   e.asset.Duration,
	}

	if e.asset.Kind == domain.KindVideo && meta.Duration == 0 && l.probe != nil {
		d, err := l.probe.ProbeDuration(ctx, e.path)
		if err != nil {
			l.logger.Debug("duration probe failed", "id", id, "error", err)
			return meta, nil
		}
		meta.Duration = d
		l.mu.Lock()
		if cur, ok := l.entries[id]; ok {
			cur.asset.Duration = d
		}
		l.mu.Unlock()
	}
	return meta, nil
}

// Delete moves the batch into the trash directory. All-or-nothing: if any
// move fails, the already-moved files are restored and the whole batch is
// rejected.
func (l *Library) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	trashDir := filepath.Join(l.root, TrashDirName, time.Now().UTC().Format("20060102-150405"))
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDeleteRejected, err)
	}

	type moved struct {
		from, to string
	}
	var done []moved

	rollback := func() {
		for i := len(done) - 1; i >= 0; i-- {
			if err := os.Rename(done[i].to, done[i].from); err != nil {
				l.logger.Error("rollback failed", "path", done[i].from, "error", err)
			}
		}
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			rollback()
			return fmt.Errorf("%w: %v", domain.ErrDeleteRejected, err)
		}
		e, ok := l.lookup(id)
		if !ok {
			rollback()
			return fmt.Errorf("%w: unknown asset %s", domain.ErrDeleteRejected, id)
		}
		target := filepath.Join(trashDir, filepath.Base(e.path))
		if err := os.Rename(e.path, target); err != nil {
			rollback()
			return fmt.Errorf("%w: %v", domain.ErrDeleteRejected, err)
		}
		done = append(done, moved{from: e.path, to: target})
	}

	l.mu.Lock()
	for _, id := range ids {
		delete(l.entries, id)
	}
	l.mu.Unlock()

	l.logger.Info("batch moved to trash", "count", len(ids), "trash", trashDir)
	return nil
}

// SetFavorite persists the favorite flag through the swipe store.
func (l *Library) SetFavorite(_ context.Context, id string, favorite bool) error {
	e, ok := l.lookup(id)
	if !ok {
		return domain.ErrAssetNotFound
	}
	if l.swipes != nil {
		l.swipes.SetFavorite(id, favorite)
	}
	l.mu.Lock()
	e.asset.Favorite = favorite
	l.mu.Unlock()
	return nil
}

// StartPreheat and StopPreheat track the read-ahead window. Local files need
// no warm-up, but the pairing contract is kept observable.
func (l *Library) StartPreheat(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		l.preheat[id]++
	}
}

func (l *Library) StopPreheat(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if l.preheat[id] > 0 {
			l.preheat[id]--
		}
		if l.preheat[id] == 0 {
			delete(l.preheat, id)
		}
	}
}

// PreheatedCount reports how many identifiers currently hold an unmatched
// preheat start.
func (l *Library) PreheatedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.preheat)
}
