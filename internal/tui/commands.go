package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/geocode"
	"github.com/mmcdole/sweep/internal/ledger"
	"github.com/mmcdole/sweep/internal/mediacache"
	"github.com/mmcdole/sweep/internal/pipeline"
	"github.com/mmcdole/sweep/internal/playback"
	"github.com/mmcdole/sweep/internal/prefetch"
)

// Command factories for async operations

const (
	fastImageTimeout = 2 * time.Second
	hdImageTimeout   = 5 * time.Second
	videoTimeout     = 10 * time.Second
	// stuckAfter is when a still-loading asset offers the skip affordance.
	stuckAfter = 3 * time.Second
)

// RefreshCmd re-filters the library and slices the first batch.
func RefreshCmd(p *pipeline.Pipeline, content domain.ContentFilter, f domain.Filter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		total, err := p.Refresh(ctx, content, f)
		switch {
		case errors.Is(err, domain.ErrScanRequired):
			return ScanDoneMsg{Err: err}
		case errors.Is(err, domain.ErrAssetNotFound):
			return EmptyLibraryMsg{}
		case errors.Is(err, domain.ErrAccessDenied):
			return AccessDeniedMsg{}
		case err != nil:
			return ErrMsg{Err: err, Context: "refreshing library"}
		}
		return LibraryLoadedMsg{Total: total}
	}
}

// NextBatchCmd slices the next batch at the given index.
func NextBatchCmd(p *pipeline.Pipeline, batchIndex int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		batch, healed, err := p.NextBatch(ctx, batchIndex)
		if errors.Is(err, domain.ErrCategoryComplete) {
			return CategoryCompleteMsg{}
		}
		if err != nil {
			return ErrMsg{Err: err, Context: "loading batch"}
		}
		return BatchLoadedMsg{Batch: batch, BatchIndex: healed}
	}
}

// LoadImageCmd requests the fast decode tier for instant paint.
func LoadImageCmd(media domain.MediaStore, cache *mediacache.Cache, id string, targetSize int, networkAllowed bool) tea.Cmd {
	return func() tea.Msg {
		if entry, ok := cache.Image(id); ok {
			return ImageLoadedMsg{AssetID: id, Result: entry.Result, Quality: domain.QualityFast}
		}

		ctx, cancel := context.WithTimeout(context.Background(), fastImageTimeout)
		defer cancel()

		result, err := media.RequestImage(ctx, id, targetSize, domain.QualityFast, networkAllowed)
		if err != nil || result.Image == nil {
			// One relaxed retry at a smaller target before giving up.
			ctx2, cancel2 := context.WithTimeout(context.Background(), fastImageTimeout)
			defer cancel2()
			result, err = media.RequestImage(ctx2, id, targetSize/2, domain.QualityFast, networkAllowed)
			if err != nil || result.Image == nil {
				return ImageFailedMsg{AssetID: id}
			}
		}
		cache.PutImage(id, result)
		return ImageLoadedMsg{AssetID: id, Result: result, Quality: domain.QualityFast}
	}
}

// UpgradeImageCmd requests the high-quality tier in the background. The
// result goes through Promote so a stale completion for a superseded asset
// is dropped, never painted.
func UpgradeImageCmd(media domain.MediaStore, cache *mediacache.Cache, id string, networkAllowed bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), hdImageTimeout)
		defer cancel()

		result, err := media.RequestImage(ctx, id, 0, domain.QualityHigh, networkAllowed)
		if err != nil || result.Image == nil {
			return nil
		}
		if !cache.Promote(id, result) {
			return nil
		}
		return ImageLoadedMsg{AssetID: id, Result: result, Quality: domain.QualityHigh}
	}
}

// ShowVideoCmd drives the playback session to Ready then Playing for an
// asset.
func ShowVideoCmd(sessions *playback.Manager, asset domain.Asset, networkAllowed bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), videoTimeout)
		defer cancel()

		if err := sessions.Show(ctx, asset, networkAllowed); err != nil {
			return VideoFailedMsg{AssetID: asset.ID}
		}
		sessions.Play()
		return VideoReadyMsg{AssetID: asset.ID}
	}
}

// PrefetchCmd runs one background walk from the cursor.
func PrefetchCmd(sched *prefetch.Scheduler, fromIndex int, seq []domain.Asset) tea.Cmd {
	return func() tea.Msg {
		sched.Schedule(context.Background(), fromIndex, seq)
		return PrefetchDoneMsg{}
	}
}

// CountCmd fetches the remaining count for a filter (cached with a short
// TTL inside the pipeline).
func CountCmd(p *pipeline.Pipeline, content domain.ContentFilter, f domain.Filter) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		n, err := p.Count(ctx, content, f)
		if err != nil {
			return nil
		}
		return CountLoadedMsg{FilterKey: f.Key(), Count: n}
	}
}

// StartScanCmd launches the short-form duration scan off the interactive
// path and returns the command that listens for its progress.
func StartScanCmd(p *pipeline.Pipeline) (tea.Cmd, chan float64) {
	progress := make(chan float64, 16)
	start := func() tea.Msg {
		_, err := p.ScanShortForm(context.Background(), func(fraction float64) {
			progress <- fraction
		})
		close(progress)
		return ScanDoneMsg{Err: err}
	}
	return start, progress
}

// ListenScanCmd waits for the next progress tick from a running scan.
func ListenScanCmd(progress chan float64) tea.Cmd {
	return func() tea.Msg {
		fraction, ok := <-progress
		if !ok {
			return nil
		}
		return ScanProgressMsg{Fraction: fraction}
	}
}

// GeocodeCmd resolves the displayed asset's place description.
func GeocodeCmd(svc *geocode.Service, asset domain.Asset) tea.Cmd {
	if svc == nil || asset.Coordinate == nil {
		return nil
	}
	coord := *asset.Coordinate
	return func() tea.Msg {
		if place, ok := svc.Cached(coord); ok {
			return GeocodeResolvedMsg{AssetID: asset.ID, Place: place}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		place, err := svc.Resolve(ctx, coord)
		if err != nil || place == "" {
			return nil
		}
		return GeocodeResolvedMsg{AssetID: asset.ID, Place: place}
	}
}

// ConfirmCmd sends the batch's delete set to the store.
func ConfirmCmd(l *ledger.Ledger) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		deleted, err := l.Confirm(ctx)
		if err != nil {
			return ConfirmFailedMsg{Err: err}
		}
		return ConfirmDoneMsg{Deleted: len(deleted)}
	}
}

// LoadingStuckCmd fires the skip affordance after the loading grace period.
func LoadingStuckCmd(assetID string) tea.Cmd {
	return tea.Tick(stuckAfter, func(time.Time) tea.Msg {
		return LoadingStuckMsg{AssetID: assetID}
	})
}

// ClearStatusCmd clears the status line after a delay.
func ClearStatusCmd(after time.Duration) tea.Cmd {
	return tea.Tick(after, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
