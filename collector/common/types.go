package common

import (
	"context"
	"errors"
	"time"
)

// Kind discriminates lifecycle event records. The values are shared with
// the kernel side; see collector/linux/proc.
type Kind uint8

const (
	KindExec Kind = 1
	KindExit Kind = 2
)

var ErrLinuxOnly = errors.New("notifyd collector is only supported on linux")

// Event is one decoded process lifecycle event. Pid is the kernel task id
// and Tgid the process (thread-group) id; for the group leader the two are
// equal, and exit events are only emitted for leaders.
type Event struct {
	Kind        Kind
	Pid         uint32
	Tgid        uint32
	Ppid        uint32
	Uid         uint32
	ExitCode    int32
	TimestampNS uint64
	Comm        string

	// Wall is the user-space receive time, used to approximate wall-clock
	// start times from the kernel's monotonic timestamps.
	Wall time.Time
}

type Config struct {
	// MinUID is the lowest uid traced in-kernel; system users below it
	// never reach the ring buffer.
	MinUID uint32
}

// Stats are transport counters exposed on the query surface.
type Stats struct {
	KernelDrops    uint64
	Decoded        uint64
	Malformed      uint64
	SchemaMismatch uint64
	UserDrops      uint64
}

type Collector interface {
	Init(ctx context.Context) error
	Start(ctx context.Context, out chan<- Event) error
	Stop(ctx context.Context) error
	Stats() Stats
}
