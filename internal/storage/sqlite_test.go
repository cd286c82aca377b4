package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/notifydone/notifyd/internal/model"
)

func TestInsertAndQueryRecent(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	first := model.Outcome{
		Kind: model.KindCompleted,
		Task: model.CompletedTask{
			PID: 100, UID: 1000, Comm: "build",
			Duration: 45 * time.Second, HasDuration: true,
			ExitCode: 0, ShouldNotify: true,
		},
		Dispatched: true,
		Sessions:   []string{"2", "5"},
		RecordedAt: time.Unix(10, 0).UTC(),
	}
	second := model.Outcome{
		Kind:       model.KindAbandonedStale,
		Task:       model.CompletedTask{PID: 200, UID: 1000, Comm: "stuck"},
		Error:      model.ErrNone,
		RecordedAt: time.Unix(20, 0).UTC(),
	}
	if err := s.InsertOutcome(first); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertOutcome(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.QueryRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Task.PID != 200 || got[1].Task.PID != 100 {
		t.Fatalf("order=%d,%d", got[0].Task.PID, got[1].Task.PID)
	}
	if got[1].Task.Duration != 45*time.Second || !got[1].Task.HasDuration {
		t.Fatalf("duration=%v", got[1].Task.Duration)
	}
	if len(got[1].Sessions) != 2 || got[1].Sessions[0] != "2" {
		t.Fatalf("sessions=%v", got[1].Sessions)
	}
	if got[0].Task.HasDuration {
		t.Fatal("abandoned outcome must not carry a duration")
	}
}

func TestPruneKeepsNewestRows(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for i := 0; i < 10; i++ {
		o := model.Outcome{
			Kind:       model.KindCompleted,
			Task:       model.CompletedTask{PID: uint32(i), UID: 1000, Comm: "c", HasDuration: true},
			RecordedAt: time.Unix(int64(i), 0).UTC(),
		}
		if err := s.InsertOutcome(o); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Prune(3); err != nil {
		t.Fatal(err)
	}

	got, err := s.QueryRecent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].Task.PID != 9 || got[2].Task.PID != 7 {
		t.Fatalf("kept=%d..%d", got[0].Task.PID, got[2].Task.PID)
	}
}
