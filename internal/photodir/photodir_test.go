package photodir

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/store"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func openLibrary(t *testing.T, root string) *Library {
	t.Helper()
	st, err := store.NewSwipeStore("")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	l, err := Open(root, st, nil, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return l
}

func TestEnumerateClassifiesByExtension(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "photo.png"), 4, 4)
	writeStub(t, filepath.Join(root, "clips", "video.mp4"))
	writeStub(t, filepath.Join(root, "notes.txt"))
	writeStub(t, filepath.Join(root, ".hidden", "secret.png"))
	writeStub(t, filepath.Join(root, TrashDirName, "old", "gone.png"))

	l := openLibrary(t, root)
	assets, err := l.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(assets) != 2 {
		t.Fatalf("expected 2 assets, got %d: %+v", len(assets), assets)
	}

	kinds := make(map[string]domain.MediaKind)
	for _, a := range assets {
		kinds[a.ID] = a.Kind
	}
	if kinds["photo.png"] != domain.KindImage {
		t.Fatalf("photo.png not classified as image")
	}
	if kinds[filepath.Join("clips", "video.mp4")] != domain.KindVideo {
		t.Fatalf("video.mp4 not classified as video")
	}
}

func TestScreenshotNameHeuristic(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "Screenshot_2024-01-05.png"), 2, 2)
	writePNG(t, filepath.Join(root, "Screen Shot 2023.png"), 2, 2)
	writePNG(t, filepath.Join(root, "vacation.png"), 2, 2)

	l := openLibrary(t, root)
	assets, err := l.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	flagged := 0
	for _, a := range assets {
		if a.Screenshot {
			flagged++
			if a.ID == "vacation.png" {
				t.Fatalf("vacation.png wrongly flagged as screenshot")
			}
		}
	}
	if flagged != 2 {
		t.Fatalf("expected 2 screenshots, got %d", flagged)
	}
}

func TestRequestImageFastIsDegradedAndBounded(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "big.png"), 64, 32)

	l := openLibrary(t, root)
	if _, err := l.Enumerate(context.Background()); err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	fast, err := l.RequestImage(context.Background(), "big.png", 16, domain.QualityFast, false)
	if err != nil {
		t.Fatalf("fast request: %v", err)
	}
	if !fast.Degraded {
		t.Fatalf("fast decode must be flagged degraded")
	}
	bounds := fast.Image.Bounds()
	if bounds.Dx() > 16 || bounds.Dy() > 16 {
		t.Fatalf("fast decode exceeds target size: %v", bounds)
	}

	high, err := l.RequestImage(context.Background(), "big.png", 16, domain.QualityHigh, false)
	if err != nil {
		t.Fatalf("high request: %v", err)
	}
	if high.Degraded {
		t.Fatalf("high-quality decode must not be degraded")
	}
	if high.Image.Bounds().Dx() != 64 {
		t.Fatalf("high-quality decode should be full size")
	}
}

func TestRequestImageUnknownAsset(t *testing.T) {
	l := openLibrary(t, t.TempDir())
	if _, err := l.RequestImage(context.Background(), "nope.png", 16, domain.QualityFast, false); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestDeleteMovesBatchToTrash(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 2, 2)
	writePNG(t, filepath.Join(root, "b.png"), 2, 2)

	l := openLibrary(t, root)
	if _, err := l.Enumerate(context.Background()); err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	if err := l.Delete(context.Background(), []string{"a.png", "b.png"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(root, name)); !os.IsNotExist(err) {
			t.Fatalf("%s should be moved out of the library", name)
		}
	}

	// Files are in the trash, not destroyed.
	var trashed int
	filepath.Walk(filepath.Join(root, TrashDirName), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			trashed++
		}
		return nil
	})
	if trashed != 2 {
		t.Fatalf("expected 2 files in trash, got %d", trashed)
	}

	// Deleted assets disappear from subsequent requests.
	if _, err := l.RequestImage(context.Background(), "a.png", 16, domain.QualityFast, false); !errors.Is(err, domain.ErrAssetNotFound) {
		t.Fatalf("deleted asset still resolvable: %v", err)
	}
}

func TestDeleteRollsBackOnPartialFailure(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), 2, 2)

	l := openLibrary(t, root)
	if _, err := l.Enumerate(context.Background()); err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	err := l.Delete(context.Background(), []string{"a.png", "missing.png"})
	if !errors.Is(err, domain.ErrDeleteRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	// The already-moved file is restored.
	if _, statErr := os.Stat(filepath.Join(root, "a.png")); statErr != nil {
		t.Fatalf("a.png not rolled back: %v", statErr)
	}
	if _, reqErr := l.RequestImage(context.Background(), "a.png", 16, domain.QualityFast, false); reqErr != nil {
		t.Fatalf("rolled-back asset must stay resolvable: %v", reqErr)
	}
}

func TestFavoritePersistsAcrossEnumerate(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "fav.png"), 2, 2)

	l := openLibrary(t, root)
	if _, err := l.Enumerate(context.Background()); err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if err := l.SetFavorite(context.Background(), "fav.png", true); err != nil {
		t.Fatalf("set favorite: %v", err)
	}

	assets, err := l.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("re-enumerate: %v", err)
	}
	if len(assets) != 1 || !assets[0].Favorite {
		t.Fatalf("favorite flag lost on re-enumerate: %+v", assets)
	}
}

func TestPreheatPairing(t *testing.T) {
	l := openLibrary(t, t.TempDir())

	l.StartPreheat([]string{"a", "b"})
	l.StartPreheat([]string{"b"})
	l.StopPreheat([]string{"a", "b"})
	if got := l.PreheatedCount(); got != 1 {
		t.Fatalf("expected 1 outstanding preheat, got %d", got)
	}
	l.StopPreheat([]string{"b"})
	if got := l.PreheatedCount(); got != 0 {
		t.Fatalf("expected balanced preheats, got %d", got)
	}
}

type fixedProber struct {
	d time.Duration
}

func (p fixedProber) ProbeDuration(context.Context, string) (time.Duration, error) {
	return p.d, nil
}

func TestMetadataProbesVideoDurationOnce(t *testing.T) {
	root := t.TempDir()
	writeStub(t, filepath.Join(root, "clip.mp4"))

	st, err := store.NewSwipeStore("")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer st.Close()

	l, err := Open(root, st, fixedProber{d: 8 * time.Second}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Enumerate(context.Background()); err != nil {
		t.Fatalf("enumerate: %v", err)
	}

	meta, err := l.RequestMetadata(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Duration != 8*time.Second {
		t.Fatalf("expected probed duration, got %v", meta.Duration)
	}
}
