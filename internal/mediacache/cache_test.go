package mediacache

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mmcdole/sweep/internal/domain"
)

// preheatRecorder is a MediaStore stub that records preheat pairing.
type preheatRecorder struct {
	mu      sync.Mutex
	started map[string]int
	stopped map[string]int
}

func newPreheatRecorder() *preheatRecorder {
	return &preheatRecorder{started: make(map[string]int), stopped: make(map[string]int)}
}

func (r *preheatRecorder) Enumerate(context.Context) ([]domain.Asset, error) { return nil, nil }
func (r *preheatRecorder) RequestImage(context.Context, string, int, domain.ImageQuality, bool) (domain.ImageResult, error) {
	return domain.ImageResult{}, domain.ErrAssetNotFound
}
func (r *preheatRecorder) RequestVideo(context.Context, string, bool) (domain.VideoHandle, error) {
	return nil, domain.ErrAssetNotFound
}
func (r *preheatRecorder) RequestMetadata(context.Context, string) (domain.AssetMetadata, error) {
	return domain.AssetMetadata{}, nil
}
func (r *preheatRecorder) Delete(context.Context, []string) error          { return nil }
func (r *preheatRecorder) SetFavorite(context.Context, string, bool) error { return nil }

func (r *preheatRecorder) StartPreheat(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.started[id]++
	}
}

func (r *preheatRecorder) StopPreheat(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.stopped[id]++
	}
}

type fakeHandle struct {
	mu       sync.Mutex
	released int
}

func (h *fakeHandle) Path() string { return "/dev/null" }
func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released++
	h.mu.Unlock()
}

func (h *fakeHandle) releaseCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func testImage() domain.ImageResult {
	return domain.ImageResult{Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}
}

func TestPromoteRequiresInterest(t *testing.T) {
	c := New(newPreheatRecorder(), nil)

	// Warm entry: promotion lands.
	c.PutImage("a", domain.ImageResult{Degraded: true})
	if !c.Promote("a", testImage()) {
		t.Fatalf("promotion of warm entry should succeed")
	}
	e, _ := c.Image("a")
	if e.Result.Degraded {
		t.Fatalf("entry should be upgraded")
	}

	// Evicted and not displayed: promotion dropped.
	c.AdvanceWindow(nil)
	if c.Promote("a", testImage()) {
		t.Fatalf("stale promotion for evicted id must be dropped")
	}
	if _, ok := c.Image("a"); ok {
		t.Fatalf("dropped promotion must not resurrect the entry")
	}

	// Displayed but not yet cached: promotion lands.
	c.SetDisplayed("b")
	if !c.Promote("b", testImage()) {
		t.Fatalf("promotion of displayed asset should succeed")
	}
}

func TestAdvanceWindowEvicts(t *testing.T) {
	rec := newPreheatRecorder()
	c := New(rec, nil)

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}
	c.PutImage("i1", testImage())
	c.PutImage("i2", testImage())
	c.PutVideo("v1", h1)
	c.PutVideo("v2", h2)

	c.AdvanceWindow([]string{"i2", "v2"})

	if _, ok := c.Image("i1"); ok {
		t.Fatalf("i1 should be evicted")
	}
	if _, ok := c.Image("i2"); !ok {
		t.Fatalf("i2 should survive")
	}
	if _, ok := c.Video("v1"); ok {
		t.Fatalf("v1 should be evicted")
	}
	if h1.releaseCount() != 1 {
		t.Fatalf("evicted video handle must be released, got %d", h1.releaseCount())
	}
	if h2.releaseCount() != 0 {
		t.Fatalf("kept video handle must not be released")
	}
}

func TestPreheatCallsArePaired(t *testing.T) {
	rec := newPreheatRecorder()
	c := New(rec, nil)

	c.AdvanceWindow([]string{"a", "b"})
	c.AdvanceWindow([]string{"b", "c"})
	c.Clear()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, id := range []string{"a", "b", "c"} {
		if rec.started[id] != rec.stopped[id] {
			t.Fatalf("unpaired preheat for %q: %d starts, %d stops", id, rec.started[id], rec.stopped[id])
		}
		if rec.started[id] == 0 {
			t.Fatalf("expected at least one preheat cycle for %q", id)
		}
	}
	// No duplicate starts while an id stays in the window.
	if rec.started["b"] != 1 {
		t.Fatalf("id retained across windows must not be re-preheated, got %d starts", rec.started["b"])
	}
}

func TestTakeVideoTransfersOwnership(t *testing.T) {
	c := New(newPreheatRecorder(), nil)
	h := &fakeHandle{}
	c.PutVideo("v", h)

	got, ok := c.TakeVideo("v")
	if !ok || got != h {
		t.Fatalf("expected to take the cached handle")
	}
	if _, ok := c.Video("v"); ok {
		t.Fatalf("taken handle must leave the cache")
	}
	// Eviction after take must not double-release.
	c.AdvanceWindow(nil)
	if h.releaseCount() != 0 {
		t.Fatalf("cache released a handle it no longer owns")
	}
}

func TestMetadataCacheTrims(t *testing.T) {
	c := New(newPreheatRecorder(), nil)

	for i := 0; i < 501; i++ {
		c.PutMetadata(fmt.Sprintf("m%04d", i), domain.AssetMetadata{})
	}
	if got := c.MetadataLen(); got != 300 {
		t.Fatalf("expected trim to 300, got %d", got)
	}
	// The most recently inserted entry survives the trim.
	if _, ok := c.Metadata("m0500"); !ok {
		t.Fatalf("most recent entry evicted")
	}
	if _, ok := c.Metadata("m0000"); ok {
		t.Fatalf("oldest entry should be evicted")
	}
}

func TestMetadataRecencyOnRead(t *testing.T) {
	c := New(newPreheatRecorder(), nil)

	for i := 0; i < 500; i++ {
		c.PutMetadata(fmt.Sprintf("m%04d", i), domain.AssetMetadata{})
	}
	// Touch the oldest entry, then overflow.
	if _, ok := c.Metadata("m0000"); !ok {
		t.Fatalf("entry missing before trim")
	}
	c.PutMetadata("overflow", domain.AssetMetadata{})

	if _, ok := c.Metadata("m0000"); !ok {
		t.Fatalf("recently touched entry must survive the trim")
	}
}

func TestSetCapsAppliesConfiguredLimits(t *testing.T) {
	c := New(newPreheatRecorder(), nil)
	c.SetCaps(4, 2)

	for i := 0; i < 5; i++ {
		c.PutMetadata(fmt.Sprintf("m%d", i), domain.AssetMetadata{})
	}
	if got := c.MetadataLen(); got > 4 {
		t.Fatalf("configured metadata cap ignored, %d entries", got)
	}

	dir := t.TempDir()
	mk := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return p
	}
	p1 := mk("a.mp4")
	c.Exports().Add("a", p1)
	c.Exports().Add("b", mk("b.mp4"))
	c.Exports().Add("c", mk("c.mp4"))

	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("configured export cap ignored, oldest file kept")
	}
	if _, ok := c.Exports().Path("c"); !ok {
		t.Fatalf("newest export missing")
	}
}

func TestExportCacheEvictsOldestFile(t *testing.T) {
	dir := t.TempDir()
	e := NewExportCache(2, nil)

	mk := func(name string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatalf("write: %v", err)
		}
		return p
	}

	p1 := mk("a.mp4")
	p2 := mk("b.mp4")
	p3 := mk("c.mp4")

	e.Add("a", p1)
	e.Add("b", p2)
	e.Add("c", p3)

	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatalf("oldest export should be deleted from disk")
	}
	if _, ok := e.Path("a"); ok {
		t.Fatalf("evicted export still resolvable")
	}
	if _, ok := e.Path("c"); !ok {
		t.Fatalf("newest export missing")
	}
	if _, err := os.Stat(p2); err != nil {
		t.Fatalf("kept export deleted: %v", err)
	}
}
