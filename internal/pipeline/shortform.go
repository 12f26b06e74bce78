package pipeline

import (
	"context"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
)

const scanKey = "shortform"

// shortFormAssets resolves the short-form sequence from the persisted scan
// snapshot, excluding processed identifiers. Enumerating before a valid scan
// exists reports domain.ErrScanRequired; the caller runs ScanShortForm off
// the interactive path and retries.
func (p *Pipeline) shortFormAssets(all []domain.Asset) ([]domain.Asset, error) {
	ids, ok := p.validScanIDs()
	if !ok {
		return nil, domain.ErrScanRequired
	}

	byID := make(map[string]domain.Asset, len(all))
	for _, a := range all {
		byID[a.ID] = a
	}

	filterKey := domain.ShortForm{}.Key()
	assets := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		a, exists := byID[id]
		if !exists {
			continue // Deleted since the scan
		}
		if p.store.IsProcessed(filterKey, id) {
			continue
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// validScanIDs returns the snapshot identifiers when the scan is still
// fresh. Freshness is a TTL on top of the persisted snapshot, so a snapshot
// from a previous run stays usable until it ages out.
func (p *Pipeline) validScanIDs() ([]string, bool) {
	if ids, ok := p.scanFresh.Get(scanKey); ok {
		return ids.([]string), true
	}
	ids, savedAt, ok := p.store.LoadScan(scanKey)
	if !ok || time.Since(savedAt) > scanTTL {
		return nil, false
	}
	p.scanFresh.SetDefault(scanKey, ids)
	return ids, true
}

// ScanReady reports whether a fresh short-form scan snapshot exists.
func (p *Pipeline) ScanReady() bool {
	_, ok := p.validScanIDs()
	return ok
}

// ScanShortForm walks every video in the library, probes durations and
// persists the qualifying identifiers. The duration read is a per-item
// property fetch, so the scan runs off the interactive path, reports
// fractional progress and honors ctx cancellation. A second call while a
// scan is running is a no-op.
func (p *Pipeline) ScanShortForm(ctx context.Context, onProgress domain.ProgressFunc) ([]string, error) {
	p.scanMu.Lock()
	if p.scanRunning {
		p.scanMu.Unlock()
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	p.scanRunning = true
	p.scanCancel = cancel
	p.scanMu.Unlock()

	defer func() {
		cancel()
		p.scanMu.Lock()
		p.scanRunning = false
		p.scanCancel = nil
		p.scanMu.Unlock()
	}()

	started := time.Now()

	// Phase 1: cheap kind filter.
	all, err := p.media.Enumerate(ctx)
	if err != nil {
		return nil, err
	}
	videos := make([]domain.Asset, 0, len(all))
	for _, a := range all {
		if a.Kind == domain.KindVideo {
			videos = append(videos, a)
		}
	}
	if len(videos) == 0 {
		if onProgress != nil {
			onProgress(1.0)
		}
		if err := p.store.SaveScan(scanKey, []string{}); err != nil {
			return nil, err
		}
		p.scanFresh.SetDefault(scanKey, []string{})
		return []string{}, nil
	}

	// Phase 2: per-item duration probe.
	qualifying := make([]string, 0, len(videos))
	for i, v := range videos {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		duration := v.Duration
		if duration == 0 {
			meta, err := p.media.RequestMetadata(ctx, v.ID)
			if err != nil {
				p.logger.Debug("duration probe failed", "id", v.ID, "error", err)
				continue
			}
			duration = meta.Duration
		}
		if duration > 0 && duration <= domain.ShortFormMaxDuration {
			qualifying = append(qualifying, v.ID)
		}

		if onProgress != nil && i+1 < len(videos) {
			onProgress(float64(i+1) / float64(len(videos)))
		}
	}

	if err := p.store.SaveScan(scanKey, qualifying); err != nil {
		return nil, err
	}
	p.scanFresh.SetDefault(scanKey, qualifying)
	p.InvalidateCounts()

	if onProgress != nil {
		onProgress(1.0)
	}

	p.logger.Info("short-form scan complete",
		"videos", len(videos), "qualifying", len(qualifying), "took", time.Since(started))
	return qualifying, nil
}

// CancelScan stops an in-flight short-form scan, if any. The partial result
// is discarded; the next activation resumes from the persisted snapshot or
// re-scans.
func (p *Pipeline) CancelScan() {
	p.scanMu.Lock()
	defer p.scanMu.Unlock()
	if p.scanCancel != nil {
		p.scanCancel()
	}
}
