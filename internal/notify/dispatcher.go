package notify

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/notifydone/notifyd/internal/config"
	"github.com/notifydone/notifyd/internal/model"
	"github.com/notifydone/notifyd/internal/session"
)

// Resolver is the slice of session.Resolver the dispatcher needs.
type Resolver interface {
	Resolve(uid uint32) ([]session.Session, error)
}

// RecordFunc receives every dispatch outcome, including drops.
type RecordFunc func(model.Outcome)

// Dispatcher decouples notification delivery from event consumption: the
// tracker's goroutine enqueues completed tasks without ever blocking, and
// a single worker performs the slow session resolution and delivery.
type Dispatcher struct {
	cfg      config.Config
	log      *zap.Logger
	resolver Resolver
	sender   Sender
	record   RecordFunc

	mu      sync.Mutex
	pending []model.CompletedTask
	wake    chan struct{}
	closed  bool

	wg sync.WaitGroup
}

func NewDispatcher(cfg config.Config, log *zap.Logger, resolver Resolver, sender Sender, record RecordFunc) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		cfg:      cfg,
		log:      log,
		resolver: resolver,
		sender:   sender,
		record:   record,
		wake:     make(chan struct{}, 1),
	}
}

// Start launches the delivery worker. The worker drains the queue until
// Close is called; ctx bounds individual deliveries, not the worker.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Enqueue hands a completed task to the worker. It never blocks: at
// capacity the oldest pending request is dropped and recorded as a
// backpressure outcome.
func (d *Dispatcher) Enqueue(task model.CompletedTask) {
	var dropped *model.CompletedTask

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if len(d.pending) >= d.cfg.DispatchQueue {
		old := d.pending[0]
		d.pending = d.pending[1:]
		dropped = &old
	}
	d.pending = append(d.pending, task)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}

	if dropped != nil {
		d.log.Warn("dispatch queue saturated, dropping oldest",
			zap.Uint32("pid", dropped.PID),
			zap.String("comm", dropped.Comm))
		d.record(model.Outcome{
			Kind:       model.KindCompleted,
			Task:       *dropped,
			Dispatched: false,
			Error:      model.ErrBackpressure,
			RecordedAt: time.Now().UTC(),
		})
	}
}

// Close stops accepting work and waits for in-flight deliveries, bounded
// by ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		task, ok := d.next()
		if !ok {
			return
		}
		if task == nil {
			select {
			case <-ctx.Done():
				return
			case <-d.wake:
			}
			continue
		}
		d.record(d.deliver(ctx, *task))
	}
}

// next returns the oldest pending task, nil when the queue is empty, and
// ok=false once closed and drained.
func (d *Dispatcher) next() (*model.CompletedTask, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		if d.closed {
			return nil, false
		}
		return nil, true
	}
	task := d.pending[0]
	d.pending = d.pending[1:]
	return &task, true
}

func (d *Dispatcher) deliver(ctx context.Context, task model.CompletedTask) model.Outcome {
	outcome := model.Outcome{
		Kind:       model.KindCompleted,
		Task:       task,
		RecordedAt: time.Now().UTC(),
	}

	sessions, err := d.resolver.Resolve(task.UID)
	if err != nil || len(sessions) == 0 {
		// The user is not there to see it; no retry.
		d.log.Warn("no session for uid, skipping notification",
			zap.Uint32("uid", task.UID), zap.Error(err))
		outcome.Error = model.ErrNoSession
		return outcome
	}

	targets := session.Pick(sessions, d.cfg.SessionPolicy)
	title, body := Title(task), Body(task)

	delivered := 0
	for _, target := range targets {
		outcome.Sessions = append(outcome.Sessions, target.ID)
		if err := d.sendWithRetry(ctx, target, title, body); err != nil {
			d.log.Error("notification delivery failed",
				zap.String("session", target.ID),
				zap.Uint32("uid", task.UID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	if delivered == 0 {
		outcome.Error = model.ErrDelivery
		return outcome
	}
	outcome.Dispatched = true
	d.log.Info("notification sent",
		zap.String("comm", task.Comm),
		zap.Duration("duration", task.Duration),
		zap.Int32("exit_code", task.ExitCode),
		zap.Int("sessions", delivered))
	return outcome
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, target session.Session, title, body string) error {
	attempts := d.cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, target, title, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(attempts))
	return err
}
