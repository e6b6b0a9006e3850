package catalog

import (
	"sync/atomic"
	"time"
)

// Snapshot is an immutable view of both catalogs. Entries from one
// refresh generation are never mixed with another: each replace swaps
// the whole snapshot pointer.
type Snapshot struct {
	Alcohol  []AlcoholEntry
	Caffeine []CaffeineEntry

	AlcoholRefreshedAt  time.Time
	CaffeineRefreshedAt time.Time
}

// Store holds the most recently fetched snapshot of each specialized
// catalog. Replacement is wholesale and last-write-wins; the store
// never refreshes itself, staleness decisions belong to the resolver.
type Store struct {
	snapshot atomic.Pointer[Snapshot]
	now      func() time.Time
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	s := &Store{now: time.Now}
	s.snapshot.Store(&Snapshot{})
	return s
}

// Snapshot returns the current catalog state. The returned value must
// be treated as read-only; it may be shared with concurrent readers.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// ReplaceAlcohol swaps in a new alcohol catalog, keeping the current
// caffeine catalog. Readers see either the old or the new snapshot,
// never a mix.
func (s *Store) ReplaceAlcohol(entries []AlcoholEntry) {
	for {
		cur := s.snapshot.Load()
		next := &Snapshot{
			Alcohol:             entries,
			Caffeine:            cur.Caffeine,
			AlcoholRefreshedAt:  s.now(),
			CaffeineRefreshedAt: cur.CaffeineRefreshedAt,
		}
		if s.snapshot.CompareAndSwap(cur, next) {
			return
		}
	}
}

// ReplaceCaffeine swaps in a new caffeine catalog, keeping the current
// alcohol catalog.
func (s *Store) ReplaceCaffeine(entries []CaffeineEntry) {
	for {
		cur := s.snapshot.Load()
		next := &Snapshot{
			Alcohol:             cur.Alcohol,
			Caffeine:            entries,
			AlcoholRefreshedAt:  cur.AlcoholRefreshedAt,
			CaffeineRefreshedAt: s.now(),
		}
		if s.snapshot.CompareAndSwap(cur, next) {
			return
		}
	}
}

// LastRefresh returns the older of the two per-catalog refresh times.
// A catalog that has never been populated reports the zero time, so a
// cold store always looks stale.
func (s *Store) LastRefresh() time.Time {
	snap := s.snapshot.Load()
	if snap.AlcoholRefreshedAt.Before(snap.CaffeineRefreshedAt) {
		return snap.AlcoholRefreshedAt
	}
	return snap.CaffeineRefreshedAt
}
