// Package buffer provides generic, thread-safe bounded buffers for
// telemetry streams. Each buffer combines an ordering strategy
// (FIFO, LIFO, priority, time-windowed) with an overflow policy
// (drop-oldest, drop-newest, block, reject) applied atomically when
// capacity is reached.
//
// Statistics are always collected for observability. Prometheus metrics
// can be optionally enabled via the WithMetrics functional option.
package buffer

import (
	"context"
	"time"
)

// Buffer represents a bounded buffer of items of type T.
// Writes are safe for concurrent producers; reads for a single drain
// consumer. Read and write paths share no channel, so draining never
// blocks ingestion.
type Buffer[T any] interface {
	// Write adds an item to the buffer. When the buffer is full the
	// configured overflow policy decides the outcome.
	Write(item T) error

	// WriteContext behaves like Write but honors context cancellation
	// while waiting under the Block policy.
	WriteContext(ctx context.Context, item T) error

	// Read retrieves and removes one item in strategy order.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// ReadBatch retrieves and removes up to max items in strategy order.
	ReadBatch(max int) []T

	// Peek retrieves the next item without removing it.
	Peek() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close shuts down the buffer and wakes any blocked writers.
	Close() error
}

// Strategy determines the order in which buffered items are drained.
type Strategy int

const (
	// FIFO drains items oldest-first.
	FIFO Strategy = iota

	// LIFO drains items newest-first.
	LIFO

	// Priority drains items by descending priority, ties oldest-first.
	// Requires WithPriorityFn.
	Priority

	// TimeWindow drains oldest-first and additionally evicts items older
	// than the configured window regardless of capacity.
	TimeWindow
)

// String returns a human-readable representation of the strategy.
func (s Strategy) String() string {
	switch s {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case Priority:
		return "priority"
	case TimeWindow:
		return "time-window"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a config string to a Strategy.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "fifo", "":
		return FIFO, true
	case "lifo":
		return LIFO, true
	case "priority":
		return Priority, true
	case "time-window", "time_window":
		return TimeWindow, true
	default:
		return FIFO, false
	}
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest evicts the head item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest silently discards the incoming item when full.
	DropNewest

	// Block causes Write operations to wait until space is available.
	Block

	// Reject makes Write return ErrBufferFull when full.
	Reject
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Block:
		return "block"
	case Reject:
		return "error"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy converts a config string to an OverflowPolicy.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop-oldest", "drop_oldest", "":
		return DropOldest, true
	case "drop-newest", "drop_newest":
		return DropNewest, true
	case "block":
		return Block, true
	case "error", "reject":
		return Reject, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with each item dropped or evicted by policy.
type DropCallback[T any] func(item T)

// PriorityFn extracts the priority of an item for the Priority strategy.
// Larger values drain first.
type PriorityFn[T any] func(item T) int

// New creates a bounded buffer with the given capacity, strategy and options.
// Stats are always collected. Returns an error if metrics registration
// fails when metrics are requested, or if the Priority strategy is chosen
// without a priority function.
func New[T any](capacity int, strategy Strategy, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newBoundedBuffer(capacity, strategy, opts)
}

// nowFn is the clock used for time-window eviction; injectable in tests.
type nowFn func() time.Time
