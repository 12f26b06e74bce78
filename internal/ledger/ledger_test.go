package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	"github.com/mmcdole/sweep/internal/store"
)

type deletingMedia struct {
	mu        sync.Mutex
	deleted   [][]string
	deleteErr error
}

func (m *deletingMedia) Enumerate(context.Context) ([]domain.Asset, error) { return nil, nil }
func (m *deletingMedia) RequestImage(context.Context, string, int, domain.ImageQuality, bool) (domain.ImageResult, error) {
	return domain.ImageResult{}, domain.ErrAssetNotFound
}
func (m *deletingMedia) RequestVideo(context.Context, string, bool) (domain.VideoHandle, error) {
	return nil, domain.ErrAssetNotFound
}
func (m *deletingMedia) RequestMetadata(context.Context, string) (domain.AssetMetadata, error) {
	return domain.AssetMetadata{}, nil
}

func (m *deletingMedia) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, append([]string(nil), ids...))
	return nil
}

func (m *deletingMedia) SetFavorite(context.Context, string, bool) error { return nil }
func (m *deletingMedia) StartPreheat([]string)                           {}
func (m *deletingMedia) StopPreheat([]string)                            {}

type denyingQuota struct {
	allowed  bool
	recorded int
}

func (q *denyingQuota) CanPerformSwipe(domain.Filter) bool { return q.allowed }
func (q *denyingQuota) RecordSwipe(domain.Filter)          { q.recorded++ }

func memStore(t *testing.T) *store.SwipeStore {
	t.Helper()
	st, err := store.NewSwipeStore("")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func asset(id string, year int) domain.Asset {
	return domain.Asset{
		ID:        id,
		Kind:      domain.KindImage,
		CreatedAt: time.Date(year, 6, 1, 12, 0, 0, 0, time.UTC),
		FileSize:  1000,
	}
}

func newTestLedger(t *testing.T, st *store.SwipeStore, media *deletingMedia) *Ledger {
	t.Helper()
	l := New(st, media, nil, nil)
	l.persistDelay = time.Millisecond
	return l
}

func TestRecordMarksProcessedSynchronously(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})
	l.Activate(domain.Favorites{})

	if err := l.Record(asset("a1", 2020), domain.DecisionKeep); err != nil {
		t.Fatalf("record: %v", err)
	}

	// Marks are visible immediately, before any debounced persistence.
	if !st.IsProcessed("favorites", "a1") {
		t.Fatalf("per-filter mark missing")
	}
	if !st.IsProcessed(store.GlobalKey, "a1") {
		t.Fatalf("global mark missing")
	}
	if got := st.Counter(counterKey("favorites")); got != 1 {
		t.Fatalf("filter counter = %d", got)
	}
}

func TestRandomFilterCrossMarksYearBucket(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})
	l.Activate(domain.Random{})

	if err := l.Record(asset("a1", 2019), domain.DecisionDelete); err != nil {
		t.Fatalf("record: %v", err)
	}
	if !st.IsProcessed("year:2019", "a1") {
		t.Fatalf("year bucket mark missing")
	}

	// Undo reverses the cross-mark too.
	if _, ok := l.UndoLast(); !ok {
		t.Fatalf("undo failed")
	}
	if st.IsProcessed("year:2019", "a1") {
		t.Fatalf("year bucket mark should be reversed")
	}
	if st.IsProcessed(store.GlobalKey, "a1") {
		t.Fatalf("global mark should be reversed")
	}
}

func TestUndoKeepsGlobalWhenOtherFilterClaims(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})

	// The asset was decided under screenshots in an earlier session.
	st.MarkProcessed("screenshots", "x")
	st.MarkProcessed(store.GlobalKey, "x")

	l.Activate(domain.Favorites{})
	if err := l.Record(asset("x", 2021), domain.DecisionDelete); err != nil {
		t.Fatalf("record: %v", err)
	}
	last, ok := l.UndoLast()
	if !ok || last.AssetID != "x" {
		t.Fatalf("undo returned %+v, %v", last, ok)
	}

	if st.IsProcessed("favorites", "x") {
		t.Fatalf("active filter mark should be reversed")
	}
	if !st.IsProcessed(store.GlobalKey, "x") {
		t.Fatalf("global mark must survive while another filter claims the asset")
	}
}

func TestUndoRemovesLastRecord(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})
	l.Activate(domain.Favorites{})

	l.Record(asset("a1", 2020), domain.DecisionKeep)
	l.Record(asset("a2", 2020), domain.DecisionDelete)

	last, ok := l.UndoLast()
	if !ok || last.AssetID != "a2" || last.Decision != domain.DecisionDelete {
		t.Fatalf("unexpected undo result: %+v", last)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 record after undo, got %d", l.Len())
	}
	if st.IsProcessed("favorites", "a2") {
		t.Fatalf("undone asset still marked processed")
	}
}

func TestQuotaGateDeniesRecord(t *testing.T) {
	st := memStore(t)
	q := &denyingQuota{allowed: false}
	l := New(st, &deletingMedia{}, q, nil)
	l.persistDelay = time.Millisecond
	l.Activate(domain.Random{})

	err := l.Record(asset("a1", 2020), domain.DecisionKeep)
	if !errors.Is(err, domain.ErrSwipeLimitReached) {
		t.Fatalf("expected limit error, got %v", err)
	}
	if l.Len() != 0 {
		t.Fatalf("denied swipe must not be recorded")
	}
	if st.IsProcessed(store.GlobalKey, "a1") {
		t.Fatalf("denied swipe must not mark processed")
	}
	if q.recorded != 0 {
		t.Fatalf("denied swipe must not hit RecordSwipe")
	}
}

func TestConfirmBatchesDeletes(t *testing.T) {
	st := memStore(t)
	media := &deletingMedia{}
	l := newTestLedger(t, st, media)
	l.Activate(domain.Favorites{})

	l.Record(asset("keep1", 2020), domain.DecisionKeep)
	l.Record(asset("del1", 2020), domain.DecisionDelete)
	l.Record(asset("del2", 2020), domain.DecisionDelete)

	if got := l.ReclaimEstimate(); got != 2000 {
		t.Fatalf("reclaim estimate = %d", got)
	}

	deleted, err := l.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if len(deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", deleted)
	}
	media.mu.Lock()
	batches := len(media.deleted)
	media.mu.Unlock()
	if batches != 1 {
		t.Fatalf("deletions must go out as one batched request, got %d", batches)
	}
	if l.Len() != 0 {
		t.Fatalf("ledger not cleared after confirm")
	}
}

func TestConfirmFailurePreservesLedger(t *testing.T) {
	st := memStore(t)
	media := &deletingMedia{deleteErr: domain.ErrDeleteRejected}
	l := newTestLedger(t, st, media)
	l.Activate(domain.Favorites{})

	l.Record(asset("del1", 2020), domain.DecisionDelete)

	if _, err := l.Confirm(context.Background()); err == nil {
		t.Fatalf("expected confirm failure")
	}
	if l.Len() != 1 {
		t.Fatalf("failed confirm must preserve records, got %d", l.Len())
	}
	if !st.IsProcessed("favorites", "del1") {
		t.Fatalf("marks must survive a failed confirm")
	}
}

func TestAbandonReversesEverything(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})
	l.Activate(domain.Random{})

	l.Record(asset("a1", 2018), domain.DecisionKeep)
	l.Record(asset("a2", 2019), domain.DecisionDelete)
	l.Abandon()

	if l.Len() != 0 {
		t.Fatalf("abandon must clear the ledger")
	}
	for _, id := range []string{"a1", "a2"} {
		if st.IsProcessed("random", id) || st.IsProcessed(store.GlobalKey, id) {
			t.Fatalf("abandon must reverse marks for %q", id)
		}
	}
	if got := st.Counter(counterKey("random")); got != 0 {
		t.Fatalf("abandon must reverse counters, got %d", got)
	}
}

func TestFlipChangesDecisionOnly(t *testing.T) {
	st := memStore(t)
	l := newTestLedger(t, st, &deletingMedia{})
	l.Activate(domain.Favorites{})

	l.Record(asset("a1", 2020), domain.DecisionKeep)
	before := st.Counter(counterKey("favorites"))

	if !l.Flip("a1", domain.DecisionDelete) {
		t.Fatalf("flip failed")
	}
	if got := l.Records()[0].Decision; got != domain.DecisionDelete {
		t.Fatalf("decision not flipped")
	}
	if st.Counter(counterKey("favorites")) != before {
		t.Fatalf("flip must not touch counters")
	}
	if l.Flip("missing", domain.DecisionKeep) {
		t.Fatalf("flip of unknown id must fail")
	}
}

func TestLedgerSurvivesProcessDeath(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	l := New(st, &deletingMedia{}, nil, nil)
	l.persistDelay = time.Millisecond
	l.Activate(domain.Year(2020))
	l.Record(asset("a1", 2020), domain.DecisionKeep)
	l.Record(asset("a2", 2020), domain.DecisionDelete)
	l.Flush()
	st.Close()

	st2, err := store.NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	l2 := New(st2, &deletingMedia{}, nil, nil)
	l2.Activate(domain.Year(2020))

	records := l2.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 restored records, got %d", len(records))
	}
	if records[0].AssetID != "a1" || records[0].Decision != domain.DecisionKeep {
		t.Fatalf("record order not preserved: %+v", records)
	}
	if records[1].AssetID != "a2" || records[1].Decision != domain.DecisionDelete {
		t.Fatalf("record order not preserved: %+v", records)
	}
}
