package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/sweep/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketProcessed = []byte("processed")
	bucketLedgers   = []byte("ledgers")
	bucketCounters  = []byte("counters")
	bucketScans     = []byte("scans")
	bucketFavorites = []byte("favorites")
)

// GlobalKey is the processed-set key for the cross-filter aggregate set.
const GlobalKey = "global"

// processedSet keeps membership and insertion order. Order matters twice:
// undo removes the most recent entry, and pruning trims the oldest.
type processedSet struct {
	order   []string
	members map[string]struct{}
}

func newProcessedSet(ids []string) *processedSet {
	s := &processedSet{members: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if _, ok := s.members[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.members[id] = struct{}{}
	}
	return s
}

func (s *processedSet) add(id string) bool {
	if _, ok := s.members[id]; ok {
		return false
	}
	s.order = append(s.order, id)
	s.members[id] = struct{}{}
	return true
}

func (s *processedSet) remove(id string) bool {
	if _, ok := s.members[id]; !ok {
		return false
	}
	delete(s.members, id)
	for i := len(s.order) - 1; i >= 0; i-- {
		if s.order[i] == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// scanSnapshot is the persisted result of a short-form duration scan.
type scanSnapshot struct {
	IDs     []string `json:"ids"`
	SavedAt int64    `json:"savedAt"`
}

// SwipeStore persists decision state using BoltDB with a write-through
// memory layer. All durable state the core owns lives here: per-filter
// processed sets, in-progress ledger snapshots, swipe counters, short-form
// scan snapshots and favorite flags.
type SwipeStore struct {
	db *bolt.DB
	mu sync.RWMutex

	processed map[string]*processedSet
	counters  map[string]int64
	favorites map[string]bool
}

// NewSwipeStore opens (or creates) the store under dir. An empty dir runs
// memory-only with no persistence.
func NewSwipeStore(dir string) (*SwipeStore, error) {
	s := &SwipeStore{
		processed: make(map[string]*processedSet),
		counters:  make(map[string]int64),
		favorites: make(map[string]bool),
	}

	if dir == "" {
		return s, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "sweep.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketProcessed, bucketLedgers, bucketCounters, bucketScans, bucketFavorites} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s.db = db
	if err := s.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// loadAll hydrates the memory layer. Processed sets and counters are read
// on every swipe, so they live in memory for the whole session.
func (s *SwipeStore) loadAll() error {
	return s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketProcessed); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				var ids []string
				if err := json.Unmarshal(v, &ids); err != nil {
					return nil // Skip corrupt entries rather than fail startup
				}
				s.processed[string(k)] = newProcessedSet(ids)
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketCounters); b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				var n int64
				if json.Unmarshal(v, &n) == nil {
					s.counters[string(k)] = n
				}
				return nil
			}); err != nil {
				return err
			}
		}
		if b := tx.Bucket(bucketFavorites); b != nil {
			return b.ForEach(func(k, v []byte) error {
				s.favorites[string(k)] = string(v) == "1"
				return nil
			})
		}
		return nil
	})
}

func (s *SwipeStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// === Generic persistence helpers ===

func (s *SwipeStore) put(bucket []byte, key string, value interface{}) error {
	if s.db == nil {
		return nil // Memory-only mode
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *SwipeStore) get(bucket []byte, key string, dest interface{}) bool {
	if s.db == nil {
		return false
	}
	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if data == nil {
		return false
	}
	return json.Unmarshal(data, dest) == nil
}

func (s *SwipeStore) del(bucket []byte, key string) {
	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// === Processed sets ===

// MarkProcessed adds id to the filter's processed set. Returns true if the
// id was newly added.
func (s *SwipeStore) MarkProcessed(filterKey, id string) bool {
	s.mu.Lock()
	set, ok := s.processed[filterKey]
	if !ok {
		set = newProcessedSet(nil)
		s.processed[filterKey] = set
	}
	added := set.add(id)
	ids := append([]string(nil), set.order...)
	s.mu.Unlock()

	if added {
		s.put(bucketProcessed, filterKey, ids)
	}
	return added
}

// UnmarkProcessed removes id from the filter's processed set.
func (s *SwipeStore) UnmarkProcessed(filterKey, id string) {
	s.mu.Lock()
	set, ok := s.processed[filterKey]
	var removed bool
	var ids []string
	if ok {
		removed = set.remove(id)
		ids = append([]string(nil), set.order...)
	}
	s.mu.Unlock()

	if removed {
		s.put(bucketProcessed, filterKey, ids)
	}
}

// IsProcessed reports whether id is in the filter's processed set.
func (s *SwipeStore) IsProcessed(filterKey, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.processed[filterKey]
	if !ok {
		return false
	}
	_, ok = set.members[id]
	return ok
}

// ProcessedIDs returns the filter's processed set in insertion order.
func (s *SwipeStore) ProcessedIDs(filterKey string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.processed[filterKey]
	if !ok {
		return nil
	}
	return append([]string(nil), set.order...)
}

// ProcessedCount returns the size of the filter's processed set.
func (s *SwipeStore) ProcessedCount(filterKey string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if set, ok := s.processed[filterKey]; ok {
		return len(set.order)
	}
	return 0
}

// OtherFilterClaims reports whether any processed set besides excludeKey and
// the global aggregate still contains id. Undo uses this to decide whether
// the global mark can be reversed.
func (s *SwipeStore) OtherFilterClaims(id, excludeKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, set := range s.processed {
		if key == excludeKey || key == GlobalKey {
			continue
		}
		if _, ok := set.members[id]; ok {
			return true
		}
	}
	return false
}

// PruneProcessed trims every non-active processed set that exceeds max down
// to max entries, dropping the oldest first. The active filter's set and the
// global aggregate are never trimmed mid-session.
func (s *SwipeStore) PruneProcessed(activeKey string, max int) {
	if max <= 0 {
		return
	}

	type trimmed struct {
		key string
		ids []string
	}
	var updates []trimmed

	s.mu.Lock()
	for key, set := range s.processed {
		if key == activeKey || key == GlobalKey {
			continue
		}
		if len(set.order) <= max {
			continue
		}
		excess := len(set.order) - max
		for _, id := range set.order[:excess] {
			delete(set.members, id)
		}
		set.order = append([]string(nil), set.order[excess:]...)
		updates = append(updates, trimmed{key: key, ids: append([]string(nil), set.order...)})
	}
	s.mu.Unlock()

	for _, u := range updates {
		s.put(bucketProcessed, u.key, u.ids)
	}
}

// === Ledger snapshots ===

// SaveLedger persists the in-progress ledger for a filter.
func (s *SwipeStore) SaveLedger(filterKey string, records []domain.SwipeRecord) error {
	if records == nil {
		records = []domain.SwipeRecord{}
	}
	return s.put(bucketLedgers, filterKey, records)
}

// LoadLedger restores a previously persisted ledger, preserving order.
func (s *SwipeStore) LoadLedger(filterKey string) ([]domain.SwipeRecord, bool) {
	var records []domain.SwipeRecord
	ok := s.get(bucketLedgers, filterKey, &records)
	return records, ok
}

// ClearLedger discards the persisted ledger for a filter.
func (s *SwipeStore) ClearLedger(filterKey string) {
	s.del(bucketLedgers, filterKey)
}

// === Counters ===

// AddCounter adjusts a named counter by delta and returns the new value.
func (s *SwipeStore) AddCounter(key string, delta int64) int64 {
	s.mu.Lock()
	s.counters[key] += delta
	if s.counters[key] < 0 {
		s.counters[key] = 0
	}
	n := s.counters[key]
	s.mu.Unlock()

	s.put(bucketCounters, key, n)
	return n
}

// Counter returns the current value of a named counter.
func (s *SwipeStore) Counter(key string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters[key]
}

// === Scan snapshots ===

// SaveScan persists the qualifying identifiers of a completed library scan.
func (s *SwipeStore) SaveScan(key string, ids []string) error {
	return s.put(bucketScans, key, scanSnapshot{IDs: ids, SavedAt: time.Now().Unix()})
}

// LoadScan restores a scan snapshot and when it was taken.
func (s *SwipeStore) LoadScan(key string) ([]string, time.Time, bool) {
	var snap scanSnapshot
	if !s.get(bucketScans, key, &snap) {
		return nil, time.Time{}, false
	}
	return snap.IDs, time.Unix(snap.SavedAt, 0), true
}

// ClearScan discards a scan snapshot.
func (s *SwipeStore) ClearScan(key string) {
	s.del(bucketScans, key)
}

// === Favorites ===

// SetFavorite records the favorite flag for an asset.
func (s *SwipeStore) SetFavorite(id string, favorite bool) {
	s.mu.Lock()
	if favorite {
		s.favorites[id] = true
	} else {
		delete(s.favorites, id)
	}
	s.mu.Unlock()

	if s.db == nil {
		return
	}
	s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFavorites)
		if favorite {
			return b.Put([]byte(id), []byte("1"))
		}
		return b.Delete([]byte(id))
	})
}

// IsFavorite reports whether an asset is flagged as a favorite.
func (s *SwipeStore) IsFavorite(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.favorites[id]
}

// FilterKeys returns every processed-set key currently known, excluding the
// global aggregate.
func (s *SwipeStore) FilterKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.processed))
	for key := range s.processed {
		if key == GlobalKey || strings.HasPrefix(key, "_") {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}
