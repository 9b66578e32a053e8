package ratelimit

import "time"

// Record is the counter state for one identifier.
type Record struct {
	Count   int
	ResetAt time.Time
	Window  time.Duration
}

// stale reports whether the record ended more than two windows before now.
func (r Record) stale(now time.Time) bool {
	return r.ResetAt.Before(now.Add(-2 * r.Window))
}

// Store holds limiter records. Implementations are not required to be safe for
// concurrent use; the Limiter serialises access.
type Store interface {
	Get(identifier string) (Record, bool)
	Set(identifier string, rec Record)
	Len() int
	// Sweep removes stale records and returns how many were removed.
	Sweep(now time.Time) int
	Reset()
}

// MemoryStore is a process-local map of records.
type MemoryStore struct {
	records map[string]Record
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(identifier string) (Record, bool) {
	rec, ok := s.records[identifier]
	return rec, ok
}

func (s *MemoryStore) Set(identifier string, rec Record) {
	s.records[identifier] = rec
}

func (s *MemoryStore) Len() int {
	return len(s.records)
}

func (s *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	for id, rec := range s.records {
		if rec.stale(now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Reset() {
	s.records = make(map[string]Record)
}
