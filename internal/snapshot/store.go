package snapshot

import (
	"sort"
	"sync"
	"time"

	"github.com/modbusmon/modbusmon/internal/modbus"
)

// Entry is the latest known reading for one tag. The whole entry is
// replaced atomically, so readers never observe a value from one cycle
// paired with a timestamp from another.
type Entry struct {
	TagID     int64         `json:"id"`
	Value     Value         `json:"value"`
	Raw       float64       `json:"raw"`
	Timestamp time.Time     `json:"-"`
	Status    modbus.Status `json:"status"`
}

// Store holds exactly one Entry per currently-configured tag. It follows a
// single-writer (the poll scheduler) multi-reader (API, alarms, live push)
// discipline; the lock is never held across I/O.
type Store struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[int64]Entry)}
}

// Update replaces a tag's entry.
func (s *Store) Update(e Entry) {
	s.mu.Lock()
	s.entries[e.TagID] = e
	s.mu.Unlock()
}

// Fail records a failed read: the last-known value is retained so the
// dashboard degrades to a visibly stale reading instead of blanking out,
// while status and timestamp reflect this cycle's outcome.
func (s *Store) Fail(tagID int64, status modbus.Status, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[tagID]
	if !ok {
		e = Entry{TagID: tagID, Value: Text("--")}
	}
	e.Status = status
	e.Timestamp = ts
	s.entries[tagID] = e
}

func (s *Store) Get(tagID int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[tagID]
	return e, ok
}

// List returns all entries ordered by tag ID.
func (s *Store) List() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out
}

// Collect returns the entries for the given tag IDs, ordered by tag ID.
// Unknown IDs are skipped.
func (s *Store) Collect(ids []int64) []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TagID < out[j].TagID })
	return out
}

// Len reports the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Prune drops entries whose tags are no longer configured. The scheduler
// calls it at the start of every cycle.
func (s *Store) Prune(keep map[int64]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.entries {
		if _, ok := keep[id]; !ok {
			delete(s.entries, id)
		}
	}
}
