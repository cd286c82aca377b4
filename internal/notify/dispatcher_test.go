package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/notifydone/notifyd/internal/config"
	"github.com/notifydone/notifyd/internal/model"
	"github.com/notifydone/notifyd/internal/session"
)

type fakeResolver struct {
	sessions []session.Session
	err      error
}

func (f *fakeResolver) Resolve(uid uint32) ([]session.Session, error) {
	return f.sessions, f.err
}

type fakeSender struct {
	mu       sync.Mutex
	calls    int
	failures int
	block    chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, s session.Session, title, body string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("session bus unreachable")
	}
	return nil
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	ch chan model.Outcome
}

func newRecorder() *recorder { return &recorder{ch: make(chan model.Outcome, 64)} }

func (r *recorder) record(o model.Outcome) { r.ch <- o }

func (r *recorder) wait(t *testing.T) model.Outcome {
	t.Helper()
	select {
	case o := <-r.ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return model.Outcome{}
	}
}

func task(pid uint32, comm string) model.CompletedTask {
	return model.CompletedTask{
		PID: pid, UID: 1000, Comm: comm,
		Duration: 45 * time.Second, HasDuration: true, ShouldNotify: true,
	}
}

func activeSession(id string, since uint64) session.Session {
	return session.Session{ID: id, UID: 1000, Username: "u", Type: session.TypeWayland, Active: true, SinceUS: since}
}

func TestDeliverBroadcastsToAllSessions(t *testing.T) {
	cfg := config.Default()
	rec := newRecorder()
	sender := &fakeSender{}
	d := NewDispatcher(cfg, nil, &fakeResolver{sessions: []session.Session{
		activeSession("2", 1), activeSession("5", 2),
	}}, sender, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Enqueue(task(100, "build"))

	o := rec.wait(t)
	if !o.Dispatched {
		t.Fatalf("outcome=%+v", o)
	}
	if len(o.Sessions) != 2 {
		t.Fatalf("sessions=%v", o.Sessions)
	}
	if sender.Calls() != 2 {
		t.Fatalf("calls=%d", sender.Calls())
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestNoSessionIsNotRetried(t *testing.T) {
	cfg := config.Default()
	rec := newRecorder()
	sender := &fakeSender{}
	d := NewDispatcher(cfg, nil, &fakeResolver{}, sender, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Enqueue(task(100, "build"))

	o := rec.wait(t)
	if o.Dispatched {
		t.Fatal("must not dispatch without a session")
	}
	if o.Error != model.ErrNoSession {
		t.Fatalf("error=%q", o.Error)
	}
	if sender.Calls() != 0 {
		t.Fatalf("calls=%d", sender.Calls())
	}
	_ = d.Close(context.Background())
}

func TestDeliveryRetriesThenSucceeds(t *testing.T) {
	cfg := config.Default()
	cfg.RetryAttempts = 3
	rec := newRecorder()
	sender := &fakeSender{failures: 1}
	d := NewDispatcher(cfg, nil, &fakeResolver{sessions: []session.Session{activeSession("2", 1)}}, sender, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Enqueue(task(100, "build"))

	o := rec.wait(t)
	if !o.Dispatched {
		t.Fatalf("outcome=%+v", o)
	}
	if sender.Calls() != 2 {
		t.Fatalf("calls=%d", sender.Calls())
	}
	_ = d.Close(context.Background())
}

func TestDeliveryExhaustsRetries(t *testing.T) {
	cfg := config.Default()
	cfg.RetryAttempts = 2
	rec := newRecorder()
	sender := &fakeSender{failures: 10}
	d := NewDispatcher(cfg, nil, &fakeResolver{sessions: []session.Session{activeSession("2", 1)}}, sender, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Enqueue(task(100, "build"))

	o := rec.wait(t)
	if o.Dispatched {
		t.Fatal("must not report dispatched after exhausting retries")
	}
	if o.Error != model.ErrDelivery {
		t.Fatalf("error=%q", o.Error)
	}
	if sender.Calls() != 2 {
		t.Fatalf("calls=%d", sender.Calls())
	}
	_ = d.Close(context.Background())
}

func TestEnqueueNeverBlocksAndDropsOldest(t *testing.T) {
	cfg := config.Default()
	cfg.DispatchQueue = 2
	rec := newRecorder()
	// Worker never started: the queue can only fill.
	d := NewDispatcher(cfg, nil, &fakeResolver{}, &fakeSender{}, rec.record)

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Enqueue(task(1, "a"))
		d.Enqueue(task(2, "b"))
		d.Enqueue(task(3, "c"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked")
	}

	o := rec.wait(t)
	if o.Error != model.ErrBackpressure {
		t.Fatalf("error=%q", o.Error)
	}
	if o.Task.PID != 1 {
		t.Fatalf("dropped pid=%d, want oldest", o.Task.PID)
	}
	if o.Dispatched {
		t.Fatal("dropped request must not be marked dispatched")
	}
}

func TestRecentPolicySingleDelivery(t *testing.T) {
	cfg := config.Default()
	cfg.SessionPolicy = config.SessionPolicyRecent
	rec := newRecorder()
	sender := &fakeSender{}
	d := NewDispatcher(cfg, nil, &fakeResolver{sessions: []session.Session{
		activeSession("2", 100), activeSession("5", 300),
	}}, sender, rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	d.Enqueue(task(100, "build"))

	o := rec.wait(t)
	if len(o.Sessions) != 1 || o.Sessions[0] != "5" {
		t.Fatalf("sessions=%v", o.Sessions)
	}
	_ = d.Close(context.Background())
}
