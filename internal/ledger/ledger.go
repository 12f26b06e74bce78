// Package ledger records keep/delete decisions for the active batch. Marks
// land in the processed sets synchronously at swipe time so a concurrent
// refetch can never re-offer a decided asset; the ledger snapshot itself is
// persisted on a short debounce so an interrupted process restores mid-batch.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/store"
)

const (
	defaultPersistDelay = 200 * time.Millisecond
	counterPrefix       = "swipes:"
)

func counterKey(filterKey string) string {
	return counterPrefix + filterKey
}

// Ledger is the in-progress decision list for one batch under one filter.
type Ledger struct {
	store  *store.SwipeStore
	media  domain.MediaStore
	quota  domain.QuotaGate
	logger *slog.Logger

	persistDelay time.Duration

	mu      sync.Mutex
	filter  domain.Filter
	records []domain.SwipeRecord
	assets  map[string]domain.Asset
	timer   *time.Timer
}

// New creates a ledger. A nil quota gate never denies.
func New(st *store.SwipeStore, media domain.MediaStore, quota domain.QuotaGate, logger *slog.Logger) *Ledger {
	if quota == nil {
		quota = domain.UnlimitedQuota{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:        st,
		media:        media,
		quota:        quota,
		logger:       logger,
		persistDelay: defaultPersistDelay,
		filter:       domain.Random{},
		assets:       make(map[string]domain.Asset),
	}
}

// Activate switches the ledger to a filter and restores any persisted
// in-progress records for it.
func (l *Ledger) Activate(f domain.Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimerLocked()
	l.filter = f
	l.records = nil
	l.assets = make(map[string]domain.Asset)
	if records, ok := l.store.LoadLedger(f.Key()); ok {
		l.records = records
		l.logger.Info("restored in-progress batch", "filter", f.Key(), "records", len(records))
	}
}

// Filter returns the active filter.
func (l *Ledger) Filter() domain.Filter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filter
}

// Records returns the ordered decision list.
func (l *Ledger) Records() []domain.SwipeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.SwipeRecord(nil), l.records...)
}

// Len returns the number of recorded decisions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Record appends a decision and synchronously marks the asset processed in
// the per-filter and global sets, strictly before any background persistence
// runs. Under the random filter the asset is additionally marked in its
// creation-year bucket. Returns ErrSwipeLimitReached when the quota gate
// denies.
func (l *Ledger) Record(asset domain.Asset, decision domain.Decision) error {
	l.mu.Lock()
	f := l.filter
	l.mu.Unlock()

	if !l.quota.CanPerformSwipe(f) {
		return domain.ErrSwipeLimitReached
	}

	l.mu.Lock()
	l.store.MarkProcessed(f.Key(), asset.ID)
	l.store.MarkProcessed(store.GlobalKey, asset.ID)
	if _, isRandom := f.(domain.Random); isRandom {
		l.store.MarkProcessed(domain.Year(asset.CreatedAt.Year()).Key(), asset.ID)
	}
	l.store.AddCounter(counterKey(f.Key()), 1)
	l.store.AddCounter(counterKey(store.GlobalKey), 1)

	l.records = append(l.records, domain.SwipeRecord{AssetID: asset.ID, Decision: decision})
	l.assets[asset.ID] = asset
	l.schedulePersistLocked()
	l.mu.Unlock()

	l.quota.RecordSwipe(f)
	return nil
}

// UndoLast pops the most recent decision and reverses its marks. The global
// mark is only removed when no other filter still claims the asset as
// processed. Returns the popped record for redisplay.
func (l *Ledger) UndoLast() (domain.SwipeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) == 0 {
		return domain.SwipeRecord{}, false
	}
	last := l.records[len(l.records)-1]
	l.records = l.records[:len(l.records)-1]

	l.reverseMarksLocked(last.AssetID)
	l.schedulePersistLocked()
	return last, true
}

// reverseMarksLocked undoes the processed marks and counters for one asset.
func (l *Ledger) reverseMarksLocked(id string) {
	key := l.filter.Key()
	l.store.UnmarkProcessed(key, id)
	if _, isRandom := l.filter.(domain.Random); isRandom {
		if asset, ok := l.assets[id]; ok {
			l.store.UnmarkProcessed(domain.Year(asset.CreatedAt.Year()).Key(), id)
		}
	}
	if !l.store.OtherFilterClaims(id, key) {
		l.store.UnmarkProcessed(store.GlobalKey, id)
	}
	l.store.AddCounter(counterKey(key), -1)
	l.store.AddCounter(counterKey(store.GlobalKey), -1)
}

// Flip changes the decision on an already-recorded asset (review screen
// toggles). Marks and counters are unaffected.
func (l *Ledger) Flip(id string, decision domain.Decision) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.records {
		if l.records[i].AssetID == id {
			l.records[i].Decision = decision
			l.schedulePersistLocked()
			return true
		}
	}
	return false
}

// DeleteCandidates returns the asset ids currently decided for deletion, in
// swipe order.
func (l *Ledger) DeleteCandidates() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, r := range l.records {
		if r.Decision == domain.DecisionDelete {
			ids = append(ids, r.AssetID)
		}
	}
	return ids
}

// ReclaimEstimate sums the file sizes of the delete-decided assets recorded
// this session. Restored records whose assets were never re-seen contribute
// zero.
func (l *Ledger) ReclaimEstimate() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, r := range l.records {
		if r.Decision == domain.DecisionDelete {
			total += l.assets[r.AssetID].FileSize
		}
	}
	return total
}

// Confirm partitions the batch and sends the delete set to the store as one
// batched request. On failure the ledger is preserved so the user's choices
// survive into a re-presented review. On success the ledger is cleared and
// the deleted ids are returned.
func (l *Ledger) Confirm(ctx context.Context) ([]string, error) {
	deletes := l.DeleteCandidates()

	if len(deletes) > 0 {
		if err := l.media.Delete(ctx, deletes); err != nil {
			l.logger.Warn("batched deletion failed, preserving ledger", "count", len(deletes), "error", err)
			return nil, err
		}
	}

	l.mu.Lock()
	l.clearLocked()
	l.mu.Unlock()
	return deletes, nil
}

// Abandon discards the batch without deleting anything: every record's marks
// are reversed and the persisted snapshot is dropped.
func (l *Ledger) Abandon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		l.reverseMarksLocked(l.records[i].AssetID)
	}
	l.clearLocked()
}

func (l *Ledger) clearLocked() {
	l.stopTimerLocked()
	l.records = nil
	l.assets = make(map[string]domain.Asset)
	l.store.ClearLedger(l.filter.Key())
}

// Flush persists the current snapshot immediately, cancelling any pending
// debounce. Called on app background and shutdown.
func (l *Ledger) Flush() {
	l.mu.Lock()
	l.stopTimerLocked()
	key := l.filter.Key()
	records := append([]domain.SwipeRecord(nil), l.records...)
	l.mu.Unlock()
	l.persist(key, records)
}

func (l *Ledger) schedulePersistLocked() {
	if l.timer != nil {
		l.timer.Stop()
	}
	key := l.filter.Key()
	records := append([]domain.SwipeRecord(nil), l.records...)
	l.timer = time.AfterFunc(l.persistDelay, func() {
		l.persist(key, records)
	})
}

func (l *Ledger) stopTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Ledger) persist(filterKey string, records []domain.SwipeRecord) {
	if err := l.store.SaveLedger(filterKey, records); err != nil {
		l.logger.Warn("ledger persist failed", "filter", filterKey, "error", err)
	}
}
