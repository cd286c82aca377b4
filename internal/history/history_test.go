package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/notifydone/notifyd/internal/model"
)

func outcome(pid uint32, comm string, kind model.OutcomeKind) model.Outcome {
	return model.Outcome{
		Kind:       kind,
		Task:       model.CompletedTask{PID: pid, UID: 1000, Comm: comm, HasDuration: kind == model.KindCompleted},
		RecordedAt: time.Now().UTC(),
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	s := New(3)
	for i := 0; i < 10; i++ {
		s.Record(outcome(uint32(i), fmt.Sprintf("cmd%d", i), model.KindCompleted))
	}
	if s.Len() != 3 {
		t.Fatalf("len=%d", s.Len())
	}

	got := s.Query(Filter{})
	if len(got) != 3 {
		t.Fatalf("query len=%d", len(got))
	}
	// Most recent first; oldest (0..6) evicted FIFO.
	if got[0].Task.PID != 9 || got[1].Task.PID != 8 || got[2].Task.PID != 7 {
		t.Fatalf("order=%d,%d,%d", got[0].Task.PID, got[1].Task.PID, got[2].Task.PID)
	}
	if c := s.Counters(); c.Evicted != 7 || c.Recorded != 10 {
		t.Fatalf("counters=%+v", c)
	}
}

func TestQueryFilters(t *testing.T) {
	s := New(16)
	s.Record(outcome(1, "build", model.KindCompleted))
	s.Record(outcome(2, "make", model.KindCompleted))
	s.Record(outcome(3, "stuck", model.KindAbandonedStale))
	other := outcome(4, "build", model.KindCompleted)
	other.Task.UID = 1001
	other.Dispatched = true
	s.Record(other)

	if got := s.Query(Filter{Comm: "build"}); len(got) != 2 {
		t.Fatalf("comm filter len=%d", len(got))
	}
	uid := uint32(1001)
	if got := s.Query(Filter{UID: &uid}); len(got) != 1 || got[0].Task.PID != 4 {
		t.Fatalf("uid filter=%+v", got)
	}
	if got := s.Query(Filter{Kind: model.KindAbandonedStale}); len(got) != 1 || got[0].Task.PID != 3 {
		t.Fatalf("kind filter=%+v", got)
	}
	dispatched := true
	if got := s.Query(Filter{Dispatched: &dispatched}); len(got) != 1 || got[0].Task.PID != 4 {
		t.Fatalf("dispatched filter=%+v", got)
	}
	if got := s.Query(Filter{Limit: 2}); len(got) != 2 || got[0].Task.PID != 4 {
		t.Fatalf("limit filter=%+v", got)
	}
}

func TestCountersClassifyOutcomes(t *testing.T) {
	s := New(16)

	delivered := outcome(1, "a", model.KindCompleted)
	delivered.Dispatched = true
	s.Record(delivered)

	failed := outcome(2, "b", model.KindCompleted)
	failed.Error = model.ErrDelivery
	s.Record(failed)

	dropped := outcome(3, "c", model.KindCompleted)
	dropped.Error = model.ErrBackpressure
	s.Record(dropped)

	s.Record(outcome(4, "d", model.KindOrphanExit))
	s.Record(outcome(5, "e", model.KindAbandonedShutdown))

	c := s.Counters()
	if c.Completions != 3 || c.Orphans != 1 || c.Abandoned != 1 {
		t.Fatalf("counters=%+v", c)
	}
	if c.Delivered != 1 || c.Undelivered != 2 || c.DispatchDrops != 1 {
		t.Fatalf("dispatch counters=%+v", c)
	}
}

func TestQueryReturnsCopies(t *testing.T) {
	s := New(4)
	s.Record(outcome(1, "a", model.KindCompleted))

	got := s.Query(Filter{})
	got[0].Task.Comm = "mutated"

	again := s.Query(Filter{})
	if again[0].Task.Comm != "a" {
		t.Fatal("query result aliases store memory")
	}
}
