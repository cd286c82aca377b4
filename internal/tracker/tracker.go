package tracker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/notifydone/notifyd/collector"
	"github.com/notifydone/notifyd/internal/config"
	"github.com/notifydone/notifyd/internal/model"
)

// Tracker is the process-correlation state machine. A single consumer
// goroutine drives all transitions; the mutex exists only so the query
// surface can snapshot the live table without stalling that writer.
type Tracker struct {
	cfg config.Config
	log *zap.Logger

	mu   sync.RWMutex
	live map[uint32]*model.TrackedTask // keyed by tgid (userspace pid)

	// Per-uid policy cache, cleared on sweep so user config edits are
	// picked up without a daemon restart.
	policies map[uint32]config.Policy
	loadUser func(uid uint32) (*config.UserConfig, error)
}

func New(cfg config.Config, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		cfg:      cfg,
		log:      log,
		live:     make(map[uint32]*model.TrackedTask),
		policies: make(map[uint32]config.Policy),
		loadUser: config.LoadUserConfig,
	}
}

// HandleExec inserts a fresh Running entry. When the pid is already live
// the old entry is superseded (pid reuse, or its exit event was lost) and
// returned as an abandoned outcome for the history store.
func (t *Tracker) HandleExec(ev collector.Event) *model.Outcome {
	task := &model.TrackedTask{
		PID:     ev.Pid,
		TGID:    ev.Tgid,
		PPID:    ev.Ppid,
		UID:     ev.Uid,
		Comm:    ev.Comm,
		StartNS: ev.TimestampNS,
		Started: ev.Wall,
		State:   model.StateRunning,
	}

	t.mu.Lock()
	prev := t.live[ev.Tgid]
	t.live[ev.Tgid] = task
	t.mu.Unlock()

	t.log.Debug("tracking process",
		zap.Uint32("pid", task.PID),
		zap.String("comm", task.Comm),
		zap.Uint32("uid", task.UID))

	if prev == nil {
		return nil
	}
	t.log.Debug("superseding live entry on re-exec",
		zap.Uint32("pid", prev.PID),
		zap.String("comm", prev.Comm))
	return abandonOutcome(prev, model.KindAbandonedReexec)
}

// HandleExit correlates an exit with its live entry. It returns the
// completed task with the notify decision already applied, or an orphan
// outcome when no exec was observed and orphan tracking is enabled.
func (t *Tracker) HandleExit(ev collector.Event) (*model.CompletedTask, *model.Outcome) {
	t.mu.Lock()
	task, ok := t.live[ev.Tgid]
	if ok {
		delete(t.live, ev.Tgid)
	}
	t.mu.Unlock()

	if !ok {
		// Exec never observed: daemon started after launch, or the exec
		// record was dropped. Without a start time the duration threshold
		// is meaningless, so the default is to discard silently.
		if !t.cfg.TrackOrphans {
			t.log.Debug("exit for untracked process",
				zap.Uint32("pid", ev.Tgid),
				zap.String("comm", ev.Comm))
			return nil, nil
		}
		return nil, &model.Outcome{
			Kind: model.KindOrphanExit,
			Task: model.CompletedTask{
				PID:      ev.Pid,
				TGID:     ev.Tgid,
				UID:      ev.Uid,
				Comm:     ev.Comm,
				ExitCode: ev.ExitCode,
			},
			RecordedAt: time.Now().UTC(),
		}
	}

	duration := time.Duration(0)
	if ev.TimestampNS > task.StartNS {
		duration = time.Duration(ev.TimestampNS - task.StartNS)
	} else if !task.Started.IsZero() && ev.Wall.After(task.Started) {
		// Kernel clock went backwards across the pair (should not happen
		// with a monotonic clock); fall back to user-space timing.
		duration = ev.Wall.Sub(task.Started)
	}

	completed := &model.CompletedTask{
		PID:         task.PID,
		TGID:        task.TGID,
		UID:         task.UID,
		Comm:        task.Comm,
		Started:     task.Started,
		Duration:    duration,
		HasDuration: true,
		ExitCode:    ev.ExitCode,
	}
	completed.ShouldNotify = t.policyFor(task.UID).ShouldNotify(completed.Comm, duration)

	t.log.Debug("process completed",
		zap.Uint32("pid", completed.PID),
		zap.String("comm", completed.Comm),
		zap.Duration("duration", duration),
		zap.Int32("exit_code", completed.ExitCode),
		zap.Bool("should_notify", completed.ShouldNotify))

	return completed, nil
}

// Sweep evicts Running entries older than the staleness bound and clears
// the per-uid policy cache. Called periodically from the consumer loop.
func (t *Tracker) Sweep(now time.Time) []model.Outcome {
	t.mu.Lock()
	var stale []*model.TrackedTask
	for tgid, task := range t.live {
		if now.Sub(task.Started) > t.cfg.StaleAfter {
			stale = append(stale, task)
			delete(t.live, tgid)
		}
	}
	t.policies = make(map[uint32]config.Policy)
	t.mu.Unlock()

	outcomes := make([]model.Outcome, 0, len(stale))
	for _, task := range stale {
		t.log.Warn("evicting stale process",
			zap.Uint32("pid", task.PID),
			zap.String("comm", task.Comm),
			zap.Duration("age", now.Sub(task.Started)))
		outcomes = append(outcomes, *abandonOutcome(task, model.KindAbandonedStale))
	}
	return outcomes
}

// Flush evicts every Running entry at shutdown so interrupted tasks are
// recorded rather than silently discarded.
func (t *Tracker) Flush() []model.Outcome {
	t.mu.Lock()
	tasks := make([]*model.TrackedTask, 0, len(t.live))
	for _, task := range t.live {
		tasks = append(tasks, task)
	}
	t.live = make(map[uint32]*model.TrackedTask)
	t.mu.Unlock()

	outcomes := make([]model.Outcome, 0, len(tasks))
	for _, task := range tasks {
		outcomes = append(outcomes, *abandonOutcome(task, model.KindAbandonedShutdown))
	}
	return outcomes
}

// Snapshot copies the live table for the query surface, ordered by pid.
func (t *Tracker) Snapshot() []model.TrackedTask {
	t.mu.RLock()
	out := make([]model.TrackedTask, 0, len(t.live))
	for _, task := range t.live {
		out = append(out, *task)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

func (t *Tracker) policyFor(uid uint32) config.Policy {
	t.mu.RLock()
	p, ok := t.policies[uid]
	t.mu.RUnlock()
	if ok {
		return p
	}

	uc, err := t.loadUser(uid)
	if err != nil {
		t.log.Debug("user config unavailable", zap.Uint32("uid", uid), zap.Error(err))
		uc = nil
	}
	p = t.cfg.Effective(uc)

	t.mu.Lock()
	t.policies[uid] = p
	t.mu.Unlock()
	return p
}

func abandonOutcome(task *model.TrackedTask, kind model.OutcomeKind) *model.Outcome {
	return &model.Outcome{
		Kind: kind,
		Task: model.CompletedTask{
			PID:     task.PID,
			TGID:    task.TGID,
			UID:     task.UID,
			Comm:    task.Comm,
			Started: task.Started,
		},
		RecordedAt: time.Now().UTC(),
	}
}
