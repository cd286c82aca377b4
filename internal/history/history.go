package history

import (
	"strings"
	"sync"
	"time"

	"github.com/notifydone/notifyd/internal/model"
)

// Counters summarize the store for the status surface.
type Counters struct {
	Recorded      uint64 `json:"recorded"`
	Completions   uint64 `json:"completions"`
	Abandoned     uint64 `json:"abandoned"`
	Orphans       uint64 `json:"orphans"`
	Delivered     uint64 `json:"delivered"`
	Undelivered   uint64 `json:"undelivered"`
	DispatchDrops uint64 `json:"dispatch_drops"`
	Evicted       uint64 `json:"evicted"`
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	UID        *uint32           `json:"uid,omitempty"`
	Comm       string            `json:"comm,omitempty"`
	Kind       model.OutcomeKind `json:"kind,omitempty"`
	Dispatched *bool             `json:"dispatched,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

// Store is a capacity-bounded FIFO of notification outcomes. One writer
// (the pipeline) appends; readers get snapshot copies, so the writer never
// waits on a slow query.
type Store struct {
	mu       sync.Mutex
	ring     []model.Outcome
	start    int
	count    int
	capacity int
	counters Counters
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 1
	}
	return &Store{ring: make([]model.Outcome, capacity), capacity: capacity}
}

// Record appends an outcome, evicting the oldest entry at capacity.
func (s *Store) Record(o model.Outcome) {
	if o.RecordedAt.IsZero() {
		o.RecordedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == s.capacity {
		s.start = (s.start + 1) % s.capacity
		s.count--
		s.counters.Evicted++
	}
	s.ring[(s.start+s.count)%s.capacity] = o
	s.count++

	s.counters.Recorded++
	switch o.Kind {
	case model.KindCompleted:
		s.counters.Completions++
	case model.KindOrphanExit:
		s.counters.Orphans++
	case model.KindAbandonedReexec, model.KindAbandonedStale, model.KindAbandonedShutdown:
		s.counters.Abandoned++
	}
	if o.Dispatched {
		s.counters.Delivered++
	} else if o.Error != model.ErrNone {
		s.counters.Undelivered++
		if o.Error == model.ErrBackpressure {
			s.counters.DispatchDrops++
		}
	}
}

// Query returns matching outcomes, most recent first. The result is a
// copy and never exceeds the store capacity (or Filter.Limit if smaller).
func (s *Store) Query(f Filter) []model.Outcome {
	s.mu.Lock()
	snap := make([]model.Outcome, 0, s.count)
	for i := s.count - 1; i >= 0; i-- {
		snap = append(snap, s.ring[(s.start+i)%s.capacity])
	}
	s.mu.Unlock()

	out := make([]model.Outcome, 0, len(snap))
	for _, o := range snap {
		if !f.matches(o) {
			continue
		}
		out = append(out, o)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Store) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (f Filter) matches(o model.Outcome) bool {
	if f.UID != nil && o.Task.UID != *f.UID {
		return false
	}
	if f.Comm != "" && !strings.Contains(o.Task.Comm, f.Comm) {
		return false
	}
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.Dispatched != nil && o.Dispatched != *f.Dispatched {
		return false
	}
	return true
}
