package store

import (
	"testing"

	"github.com/mmcdole/sweep/internal/domain"
)

func TestProcessedSetSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	s.MarkProcessed("random", "a")
	s.MarkProcessed("random", "b")
	s.MarkProcessed(GlobalKey, "a")
	if err := s.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	s2, err := NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	if !s2.IsProcessed("random", "a") || !s2.IsProcessed("random", "b") {
		t.Fatalf("processed marks lost across reopen")
	}
	if !s2.IsProcessed(GlobalKey, "a") {
		t.Fatalf("global mark lost across reopen")
	}
	ids := s2.ProcessedIDs("random")
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("insertion order lost: %v", ids)
	}
}

func TestMarkProcessedIsIdempotent(t *testing.T) {
	s, err := NewSwipeStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if !s.MarkProcessed("random", "a") {
		t.Fatalf("first mark should report newly added")
	}
	if s.MarkProcessed("random", "a") {
		t.Fatalf("second mark should be a no-op")
	}
	if got := s.ProcessedCount("random"); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
}

func TestUnmarkProcessed(t *testing.T) {
	s, _ := NewSwipeStore("")
	s.MarkProcessed("random", "a")
	s.MarkProcessed("random", "b")
	s.UnmarkProcessed("random", "a")

	if s.IsProcessed("random", "a") {
		t.Fatalf("a should be unmarked")
	}
	if !s.IsProcessed("random", "b") {
		t.Fatalf("b should survive")
	}
	if got := s.ProcessedCount("random"); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
}

func TestOtherFilterClaims(t *testing.T) {
	s, _ := NewSwipeStore("")
	s.MarkProcessed("random", "x")
	s.MarkProcessed("year:2020", "x")
	s.MarkProcessed(GlobalKey, "x")

	if !s.OtherFilterClaims("x", "random") {
		t.Fatalf("year:2020 still claims x")
	}
	s.UnmarkProcessed("year:2020", "x")
	if s.OtherFilterClaims("x", "random") {
		t.Fatalf("no other filter claims x after unmark")
	}
}

func TestPruneProcessedTrimsOldestOfInactiveFilters(t *testing.T) {
	s, _ := NewSwipeStore("")
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.MarkProcessed("year:2019", id)
		s.MarkProcessed("random", id)
	}

	s.PruneProcessed("random", 3)

	// Active filter untouched
	if got := s.ProcessedCount("random"); got != 5 {
		t.Fatalf("active filter trimmed: %d", got)
	}
	// Inactive filter trimmed to cap, oldest dropped
	ids := s.ProcessedIDs("year:2019")
	if len(ids) != 3 {
		t.Fatalf("expected 3 after prune, got %d", len(ids))
	}
	if ids[0] != "c" || ids[2] != "e" {
		t.Fatalf("expected oldest trimmed, got %v", ids)
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	records := []domain.SwipeRecord{
		{AssetID: "a", Decision: domain.DecisionKeep},
		{AssetID: "b", Decision: domain.DecisionDelete},
		{AssetID: "c", Decision: domain.DecisionKeep},
	}
	if err := s.SaveLedger("random", records); err != nil {
		t.Fatalf("save ledger: %v", err)
	}
	s.Close()

	// Simulated process death: reopen and restore
	s2, err := NewSwipeStore(dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	restored, ok := s2.LoadLedger("random")
	if !ok {
		t.Fatalf("ledger snapshot missing after reopen")
	}
	if len(restored) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(restored))
	}
	for i := range records {
		if restored[i] != records[i] {
			t.Fatalf("record %d mismatch: got %+v, want %+v", i, restored[i], records[i])
		}
	}

	s2.ClearLedger("random")
	if _, ok := s2.LoadLedger("random"); ok {
		t.Fatalf("ledger should be gone after clear")
	}
}

func TestCountersPersist(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSwipeStore(dir)
	s.AddCounter("swipes:random", 3)
	s.AddCounter("swipes:random", 2)
	s.AddCounter("swipes:random", -1)
	s.Close()

	s2, _ := NewSwipeStore(dir)
	defer s2.Close()
	if got := s2.Counter("swipes:random"); got != 4 {
		t.Fatalf("expected counter 4, got %d", got)
	}
}

func TestCounterNeverNegative(t *testing.T) {
	s, _ := NewSwipeStore("")
	s.AddCounter("swipes:random", -5)
	if got := s.Counter("swipes:random"); got != 0 {
		t.Fatalf("counter went negative: %d", got)
	}
}

func TestScanSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSwipeStore(dir)
	if err := s.SaveScan("shortform", []string{"v1", "v2"}); err != nil {
		t.Fatalf("save scan: %v", err)
	}
	s.Close()

	s2, _ := NewSwipeStore(dir)
	defer s2.Close()
	ids, savedAt, ok := s2.LoadScan("shortform")
	if !ok {
		t.Fatalf("scan snapshot missing")
	}
	if len(ids) != 2 || ids[0] != "v1" {
		t.Fatalf("unexpected scan ids: %v", ids)
	}
	if savedAt.IsZero() {
		t.Fatalf("savedAt not recorded")
	}
}

func TestFavorites(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewSwipeStore(dir)
	s.SetFavorite("a", true)
	s.SetFavorite("b", true)
	s.SetFavorite("b", false)
	s.Close()

	s2, _ := NewSwipeStore(dir)
	defer s2.Close()
	if !s2.IsFavorite("a") {
		t.Fatalf("favorite lost across reopen")
	}
	if s2.IsFavorite("b") {
		t.Fatalf("cleared favorite resurrected")
	}
}
