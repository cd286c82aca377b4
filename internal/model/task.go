package model

import "time"

// TaskState is the lifecycle state of a tracked process.
type TaskState string

const (
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateAbandoned TaskState = "abandoned"
)

// TrackedTask is the live record kept between a process's exec and exit
// events. PID and TGID carry the wire ids unchanged (kernel task id and
// thread-group id; equal for group leaders, the only tasks observed). The
// tracker keys the live table by TGID; StartNS disambiguates a recycled
// pid whose predecessor's exit was never observed.
type TrackedTask struct {
	PID     uint32    `json:"pid"`
	TGID    uint32    `json:"tgid"`
	PPID    uint32    `json:"ppid,omitempty"`
	UID     uint32    `json:"uid"`
	Comm    string    `json:"comm"`
	StartNS uint64    `json:"start_ns"`
	Started time.Time `json:"started"`
	State   TaskState `json:"state"`
}

// CompletedTask is the immutable result of correlating an exec event with
// its exit event. HasDuration is false for orphan exits whose exec was
// never observed; Duration is meaningless in that case.
type CompletedTask struct {
	PID          uint32        `json:"pid"`
	TGID         uint32        `json:"tgid"`
	UID          uint32        `json:"uid"`
	Comm         string        `json:"comm"`
	Started      time.Time     `json:"started"`
	Duration     time.Duration `json:"duration"`
	HasDuration  bool          `json:"has_duration"`
	ExitCode     int32         `json:"exit_code"`
	ShouldNotify bool          `json:"should_notify"`
}
