//go:build linux

package linuxcollector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cilium/ebpf/rlimit"

	common "github.com/notifydone/notifyd/collector/common"
	proctrace "github.com/notifydone/notifyd/collector/linux/proc"
)

type LinuxCollector struct {
	cfg common.Config

	procTracer *proctrace.Tracer

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	userDrops atomic.Uint64
}

func NewCollector(cfg common.Config) *LinuxCollector {
	if cfg.MinUID == 0 {
		cfg.MinUID = 1000
	}
	return &LinuxCollector{cfg: cfg}
}

func (lc *LinuxCollector) Init(ctx context.Context) error {
	// eBPF map creation is constrained by RLIMIT_MEMLOCK on many systems.
	// This typically requires root or CAP_SYS_RESOURCE.
	if err := rlimit.RemoveMemlock(); err != nil {
		return fmt.Errorf("remove memlock rlimit (try sudo): %w", err)
	}

	lc.procTracer = proctrace.NewTracer(proctrace.Config{MinUID: lc.cfg.MinUID})
	if err := lc.procTracer.Init(ctx); err != nil {
		return fmt.Errorf("init proc tracer: %w", err)
	}
	return nil
}

func (lc *LinuxCollector) Start(ctx context.Context, out chan<- common.Event) error {
	if lc.procTracer == nil {
		return errors.New("collector not initialized")
	}

	runCtx, cancel := context.WithCancel(ctx)
	lc.cancel = cancel

	procCh, err := lc.procTracer.Start(runCtx)
	if err != nil {
		cancel()
		return err
	}
	lc.wg.Add(1)
	go func() {
		defer lc.wg.Done()
		for ev := range procCh {
			lc.forward(out, ev)
		}
	}()

	return nil
}

func (lc *LinuxCollector) Stop(ctx context.Context) error {
	if lc.cancel != nil {
		lc.cancel()
	}

	var errs []error
	// Stop the underlying reader first so its output channel closes and the
	// forwarding goroutine in lc.wg can exit without deadlocking.
	if lc.procTracer != nil {
		if err := lc.procTracer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		lc.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	case <-done:
	}
	return errors.Join(errs...)
}

func (lc *LinuxCollector) Stats() common.Stats {
	var st common.Stats
	if lc.procTracer != nil {
		st = lc.procTracer.Stats()
	}
	st.UserDrops = lc.userDrops.Load()
	return st
}

func (lc *LinuxCollector) forward(out chan<- common.Event, ev common.Event) {
	select {
	case out <- ev:
	default:
		// Drop under backpressure. Observation must never stall the reader.
		lc.userDrops.Add(1)
	}
}
