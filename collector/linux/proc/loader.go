//go:build linux

package proctrace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"

	common "github.com/notifydone/notifyd/collector/common"
)

type Config struct {
	MinUID uint32
}

// Tracer owns the one kernel attachment for the daemon's lifetime: the
// loaded collection, the two sched tracepoint links, and the ring buffer
// reader. Everything is released in Stop regardless of exit path.
type Tracer struct {
	cfg Config

	mu      sync.Mutex
	coll    *ebpf.Collection
	links   []link.Link
	reader  *ringbuf.Reader
	out     chan common.Event
	runWG   sync.WaitGroup
	started bool

	decoded        atomic.Uint64
	malformed      atomic.Uint64
	schemaMismatch atomic.Uint64
}

func NewTracer(cfg Config) *Tracer {
	if cfg.MinUID == 0 {
		cfg.MinUID = 1000
	}
	return &Tracer{cfg: cfg}
}

func (t *Tracer) Init(ctx context.Context) error {
	_ = ctx
	return nil
}

func (t *Tracer) Start(ctx context.Context) (<-chan common.Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return nil, fmt.Errorf("proc tracer already started")
	}

	objPath := os.Getenv("NOTIFYD_PROC_BPF_OBJ")
	if objPath == "" {
		objPath = firstExistingPath(
			filepath.Join("collector", "linux", "proc", "proc_bpfel.o"),
			filepath.Join("collector", "linux", "proc", "proc.bpf.o"),
		)
	}

	spec, err := ebpf.LoadCollectionSpec(objPath)
	if err != nil {
		return nil, fmt.Errorf("load proc bpf object %s: %w", objPath, err)
	}
	if err := spec.RewriteConstants(map[string]interface{}{
		"min_uid": t.cfg.MinUID,
	}); err != nil {
		return nil, fmt.Errorf("rewrite min_uid: %w", err)
	}
	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("new proc bpf collection: %w", err)
	}

	eventsMap, ok := coll.Maps["events"]
	if !ok {
		coll.Close()
		return nil, fmt.Errorf("proc events map not found")
	}
	rdr, err := ringbuf.NewReader(eventsMap)
	if err != nil {
		coll.Close()
		return nil, fmt.Errorf("new proc ringbuf reader: %w", err)
	}

	attach := []struct {
		group string
		name  string
		prog  string
	}{
		{"sched", "sched_process_exec", "trace_sched_exec"},
		{"sched", "sched_process_exit", "trace_sched_exit"},
	}

	links := make([]link.Link, 0, len(attach))
	for _, a := range attach {
		prog, ok := coll.Programs[a.prog]
		if !ok {
			rdr.Close()
			coll.Close()
			return nil, fmt.Errorf("proc program %s not found", a.prog)
		}
		lnk, err := link.Tracepoint(a.group, a.name, prog, nil)
		if err != nil {
			for _, l := range links {
				_ = l.Close()
			}
			rdr.Close()
			coll.Close()
			return nil, fmt.Errorf("attach tracepoint %s/%s: %w", a.group, a.name, err)
		}
		links = append(links, lnk)
	}

	out := make(chan common.Event, 2048)
	t.coll = coll
	t.links = links
	t.reader = rdr
	t.out = out
	t.started = true

	t.runWG.Add(1)
	go func() {
		defer t.runWG.Done()
		defer close(out)
		t.consume(ctx, out)
	}()

	return out, nil
}

func (t *Tracer) consume(ctx context.Context, out chan<- common.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, err := t.reader.Read()
		if err != nil {
			if errors.Is(err, ringbuf.ErrClosed) || ctx.Err() != nil {
				return
			}
			continue
		}

		ev, err := decodeEvent(rec.RawSample)
		if err != nil {
			if err == errBadVersion {
				t.schemaMismatch.Add(1)
			} else {
				t.malformed.Add(1)
			}
			continue
		}
		ev.Wall = time.Now().UTC()
		t.decoded.Add(1)

		out <- ev
	}
}

// KernelDrops sums the per-cpu reservation-failure counter maintained by
// the kernel side.
func (t *Tracer) KernelDrops() uint64 {
	t.mu.Lock()
	coll := t.coll
	t.mu.Unlock()
	if coll == nil {
		return 0
	}
	m, ok := coll.Maps["drops"]
	if !ok {
		return 0
	}
	var perCPU []uint64
	if err := m.Lookup(uint32(0), &perCPU); err != nil {
		return 0
	}
	var total uint64
	for _, v := range perCPU {
		total += v
	}
	return total
}

func (t *Tracer) Stats() common.Stats {
	return common.Stats{
		KernelDrops:    t.KernelDrops(),
		Decoded:        t.decoded.Load(),
		Malformed:      t.malformed.Load(),
		SchemaMismatch: t.schemaMismatch.Load(),
	}
}

func (t *Tracer) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return nil
	}
	reader := t.reader
	links := append([]link.Link{}, t.links...)
	coll := t.coll
	t.started = false
	t.mu.Unlock()

	if reader != nil {
		_ = reader.Close()
	}
	for _, l := range links {
		_ = l.Close()
	}
	if coll != nil {
		coll.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.runWG.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func firstExistingPath(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return paths[0]
}
