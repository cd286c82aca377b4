//go:build linux

package notifyd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/notifydone/notifyd/collector"
	"github.com/notifydone/notifyd/internal/config"
	"github.com/notifydone/notifyd/internal/history"
	"github.com/notifydone/notifyd/internal/ipc"
	"github.com/notifydone/notifyd/internal/model"
	"github.com/notifydone/notifyd/internal/notify"
	"github.com/notifydone/notifyd/internal/session"
	"github.com/notifydone/notifyd/internal/storage"
	"github.com/notifydone/notifyd/internal/tracker"
)

// Daemon wires the pipeline: collector -> tracker -> dispatcher/history.
// One goroutine consumes events and owns the tracker; the dispatcher's
// worker handles deliveries; the IPC server serves read-only queries.
type Daemon struct {
	cfg config.Config
	log *zap.Logger

	col      collector.Collector
	tracker  *tracker.Tracker
	hist     *history.Store
	store    *storage.SQLite
	resolver *session.Resolver
	disp     *notify.Dispatcher

	start    time.Time
	attached atomic.Bool
	inserts  atomic.Uint64
}

func New(cfg config.Config, log *zap.Logger) (*Daemon, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		log:      log,
		col:      collector.New(collector.Config{MinUID: cfg.MinUID}),
		tracker:  tracker.New(cfg, log),
		hist:     history.New(cfg.HistoryCapacity),
		resolver: session.NewResolver(log),
		start:    time.Now(),
	}
	d.disp = notify.NewDispatcher(cfg, log, d.resolver, notify.DesktopSender{}, d.record)

	if cfg.DBPath != "" {
		store, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open history db: %w", err)
		}
		d.store = store
	}
	return d, nil
}

// Run attaches the instrumentation and drives the pipeline until ctx is
// cancelled. Attach failures are fatal; everything after that degrades
// without stopping the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.col.Init(ctx); err != nil {
		return fmt.Errorf("collector init: %w", err)
	}

	events := make(chan collector.Event, 16384)
	if err := d.col.Start(ctx, events); err != nil {
		return fmt.Errorf("collector start: %w", err)
	}
	d.attached.Store(true)
	d.log.Info("instrumentation attached",
		zap.Uint32("min_uid", d.cfg.MinUID),
		zap.Duration("threshold", d.cfg.Threshold))

	d.disp.Start(context.Background())

	srv := NewServer(d.cfg.Socket, d)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe(ctx) }()

	sweep := time.NewTicker(d.cfg.SweepInterval)
	defer sweep.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			d.handleEvent(ev)
		case <-sweep.C:
			d.runSweep()
		}
	}

	return d.shutdown(srvErr)
}

func (d *Daemon) handleEvent(ev collector.Event) {
	switch ev.Kind {
	case collector.KindExec:
		if abandoned := d.tracker.HandleExec(ev); abandoned != nil {
			d.record(*abandoned)
		}
	case collector.KindExit:
		completed, orphan := d.tracker.HandleExit(ev)
		if orphan != nil {
			d.record(*orphan)
			return
		}
		if completed == nil {
			return
		}
		if completed.ShouldNotify {
			d.disp.Enqueue(*completed)
			return
		}
		// Tracked in history, but below threshold or ignored: the
		// dispatcher is never invoked.
		d.record(model.Outcome{
			Kind:       model.KindCompleted,
			Task:       *completed,
			RecordedAt: time.Now().UTC(),
		})
	}
}

func (d *Daemon) runSweep() {
	for _, o := range d.tracker.Sweep(time.Now()) {
		d.record(o)
	}
	d.resolver.ClearCache()
}

// record is the single sink for outcomes from the consumer goroutine and
// the dispatcher worker. The sqlite mirror is best effort.
func (d *Daemon) record(o model.Outcome) {
	d.hist.Record(o)
	if d.store == nil {
		return
	}
	if err := d.store.InsertOutcome(o); err != nil {
		d.log.Warn("history db insert failed", zap.Error(err))
		return
	}
	if n := d.inserts.Add(1); n%256 == 0 {
		if err := d.store.Prune(d.cfg.HistoryCapacity); err != nil {
			d.log.Warn("history db prune failed", zap.Error(err))
		}
	}
}

func (d *Daemon) shutdown(srvErr <-chan error) error {
	d.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.col.Stop(stopCtx); err != nil {
		d.log.Warn("collector stop", zap.Error(err))
	}
	d.attached.Store(false)

	// Interrupted tasks are recorded, not silently discarded.
	for _, o := range d.tracker.Flush() {
		d.record(o)
	}

	closeCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := d.disp.Close(closeCtx); err != nil {
		d.log.Warn("dispatcher close", zap.Error(err))
	}

	_ = d.resolver.Close()
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("history db close", zap.Error(err))
		}
	}

	select {
	case err := <-srvErr:
		return err
	case <-time.After(2 * time.Second):
		return nil
	}
}

// Status implements Backend.
func (d *Daemon) Status() ipc.StatusResponse {
	st := d.col.Stats()
	return ipc.StatusResponse{
		PID:       os.Getpid(),
		Uptime:    time.Since(d.start),
		Attached:  d.attached.Load(),
		LiveTasks: d.tracker.Count(),
		Transport: ipc.TransportStats{
			KernelDrops:    st.KernelDrops,
			Decoded:        st.Decoded,
			Malformed:      st.Malformed,
			SchemaMismatch: st.SchemaMismatch,
			UserDrops:      st.UserDrops,
		},
		Counters:      d.hist.Counters(),
		Threshold:     d.cfg.Threshold,
		SessionPolicy: d.cfg.SessionPolicy,
	}
}

// List implements Backend.
func (d *Daemon) List(uid *uint32) []model.TrackedTask {
	snap := d.tracker.Snapshot()
	if uid == nil {
		return snap
	}
	out := snap[:0]
	for _, t := range snap {
		if t.UID == *uid {
			out = append(out, t)
		}
	}
	return out
}

// History implements Backend.
func (d *Daemon) History(f history.Filter, uid *uint32) []model.Outcome {
	if uid != nil {
		f.UID = uid
	}
	return d.hist.Query(f)
}
