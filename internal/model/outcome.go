package model

import "time"

// OutcomeKind classifies how a tracked process left the live table.
type OutcomeKind string

const (
	// KindCompleted is a correlated exec/exit pair.
	KindCompleted OutcomeKind = "completed"
	// KindOrphanExit is an exit whose exec was never observed.
	KindOrphanExit OutcomeKind = "orphan_exit"
	// KindAbandonedReexec is a live entry superseded by a fresh exec for
	// the same pid (pid reuse, or the first exit event was lost).
	KindAbandonedReexec OutcomeKind = "abandoned_reexec"
	// KindAbandonedStale is a live entry evicted by the staleness sweep.
	KindAbandonedStale OutcomeKind = "abandoned_stale"
	// KindAbandonedShutdown is a live entry flushed at daemon shutdown.
	KindAbandonedShutdown OutcomeKind = "abandoned_shutdown"
)

// ErrorKind classifies why a notification was not delivered.
type ErrorKind string

const (
	ErrNone         ErrorKind = ""
	ErrNoSession    ErrorKind = "no_session"
	ErrDelivery     ErrorKind = "delivery"
	ErrBackpressure ErrorKind = "backpressure"
)

// Outcome is one history record: a completed (or abandoned) task together
// with the dispatch result. Immutable once recorded.
type Outcome struct {
	Kind       OutcomeKind   `json:"kind"`
	Task       CompletedTask `json:"task"`
	Dispatched bool          `json:"dispatched"`
	Sessions   []string      `json:"sessions,omitempty"`
	Error      ErrorKind     `json:"error,omitempty"`
	RecordedAt time.Time     `json:"recorded_at"`
}
