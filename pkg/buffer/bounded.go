package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/errors"
)

// entry pairs a buffered item with its insertion time and priority.
type entry[T any] struct {
	item T
	at   time.Time
	prio int
}

// boundedBuffer is a thread-safe bounded buffer. entries[0] is always the
// next item to drain; the strategy decides where writes are inserted and
// which entry counts as oldest for eviction.
type boundedBuffer[T any] struct {
	mu       sync.RWMutex
	entries  []entry[T]
	capacity int
	strategy Strategy
	stats    *Statistics
	metrics  *bufferMetrics
	opts     *bufferOptions[T]

	// For Block policy
	notFull *sync.Cond
	closed  bool
}

func newBoundedBuffer[T any](capacity int, strategy Strategy, opts *bufferOptions[T]) (*boundedBuffer[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	if strategy == Priority && opts.priorityFn == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Buffer", "New", "priority strategy requires a priority function")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "Buffer", "New", "metrics registration")
		}
	}

	bb := &boundedBuffer[T]{
		entries:  make([]entry[T], 0, capacity),
		capacity: capacity,
		strategy: strategy,
		stats:    NewStatistics(),
		metrics:  metrics,
		opts:     opts,
	}
	bb.notFull = sync.NewCond(&bb.mu)

	return bb, nil
}

// Write adds an item to the buffer according to the overflow policy.
func (bb *boundedBuffer[T]) Write(item T) error {
	return bb.WriteContext(context.Background(), item)
}

// WriteContext adds an item, honoring context cancellation while waiting
// under the Block policy. Drop callbacks fire after the lock is released,
// so they may safely re-enter the buffer.
func (bb *boundedBuffer[T]) WriteContext(ctx context.Context, item T) error {
	var dropped []T
	defer bb.notifyDropped(&dropped)

	bb.mu.Lock()
	defer bb.mu.Unlock()

	if bb.closed {
		return errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", "Write", "write to closed buffer")
	}

	now := bb.opts.now()

	if bb.strategy == TimeWindow {
		dropped = append(dropped, bb.evictExpiredLocked(now)...)
	}

	if len(bb.entries) == bb.capacity {
		switch bb.opts.overflowPolicy {
		case DropOldest:
			dropped = append(dropped, bb.evictOldestLocked())
			bb.stats.Overflow()
			bb.stats.Drop()
			if bb.metrics != nil {
				bb.metrics.recordOverflow()
				bb.metrics.recordDrop()
			}

		case DropNewest:
			bb.stats.Overflow()
			bb.stats.Drop()
			if bb.metrics != nil {
				bb.metrics.recordOverflow()
				bb.metrics.recordDrop()
			}
			dropped = append(dropped, item)
			return nil

		case Block:
			if err := bb.waitNotFullLocked(ctx); err != nil {
				return err
			}

		case Reject:
			bb.stats.Overflow()
			if bb.metrics != nil {
				bb.metrics.recordOverflow()
			}
			return errors.WrapTransient(errors.ErrBufferFull, "Buffer", "Write", "capacity check")
		}
	}

	bb.insertLocked(entry[T]{item: item, at: now, prio: bb.priorityOf(item)})

	bb.stats.Write()
	bb.stats.UpdateSize(int64(len(bb.entries)))
	if bb.metrics != nil {
		bb.metrics.recordWrite(len(bb.entries), bb.capacity)
	}

	return nil
}

// waitNotFullLocked blocks until space frees, the buffer closes, or ctx is
// cancelled. Caller holds bb.mu.
func (bb *boundedBuffer[T]) waitNotFullLocked(ctx context.Context) error {
	if ctx.Done() != nil {
		// Wake the cond wait when the context fires
		stop := context.AfterFunc(ctx, func() {
			bb.notFull.Broadcast()
		})
		defer stop()
	}

	for len(bb.entries) == bb.capacity && !bb.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		bb.notFull.Wait()
	}

	if bb.closed {
		return errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", "Write", "buffer closed during blocking wait")
	}
	return ctx.Err()
}

// insertLocked places a new entry according to the strategy.
func (bb *boundedBuffer[T]) insertLocked(e entry[T]) {
	switch bb.strategy {
	case LIFO:
		// Newest drains first
		bb.entries = append([]entry[T]{e}, bb.entries...)
	case Priority:
		// Descending priority, ties oldest-first
		idx := len(bb.entries)
		for i, existing := range bb.entries {
			if e.prio > existing.prio {
				idx = i
				break
			}
		}
		bb.entries = append(bb.entries, entry[T]{})
		copy(bb.entries[idx+1:], bb.entries[idx:])
		bb.entries[idx] = e
	default: // FIFO, TimeWindow
		bb.entries = append(bb.entries, e)
	}
}

// evictOldestLocked removes and returns the entry that has been buffered
// longest. For FIFO and TimeWindow that is the drain head; for LIFO the
// tail; for Priority the entry with the earliest insertion time.
func (bb *boundedBuffer[T]) evictOldestLocked() T {
	idx := 0
	switch bb.strategy {
	case LIFO:
		idx = len(bb.entries) - 1
	case Priority:
		for i, e := range bb.entries {
			if e.at.Before(bb.entries[idx].at) {
				idx = i
			}
		}
	}

	dropped := bb.entries[idx].item
	bb.entries = append(bb.entries[:idx], bb.entries[idx+1:]...)
	return dropped
}

// notifyDropped invokes the drop callback for each collected item. Deferred
// before the lock is taken so the callbacks run after it is released and may
// re-enter the buffer without deadlocking.
func (bb *boundedBuffer[T]) notifyDropped(dropped *[]T) {
	if bb.opts.dropCallback == nil {
		return
	}
	for _, item := range *dropped {
		bb.opts.dropCallback(item)
	}
}

// evictExpiredLocked removes entries older than the configured window and
// returns them for drop notification.
func (bb *boundedBuffer[T]) evictExpiredLocked(now time.Time) []T {
	if bb.opts.window <= 0 {
		return nil
	}
	cutoff := now.Add(-bb.opts.window)

	var expired []T
	kept := bb.entries[:0]
	for _, e := range bb.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
			continue
		}
		bb.stats.Expire()
		if bb.metrics != nil {
			bb.metrics.recordExpire()
		}
		expired = append(expired, e.item)
	}
	if len(kept) != len(bb.entries) {
		bb.entries = kept
		bb.stats.UpdateSize(int64(len(bb.entries)))
		bb.notFull.Broadcast()
	}
	return expired
}

// Read retrieves and removes one item in strategy order.
func (bb *boundedBuffer[T]) Read() (T, bool) {
	var dropped []T
	defer bb.notifyDropped(&dropped)

	bb.mu.Lock()
	defer bb.mu.Unlock()

	var zero T

	if bb.strategy == TimeWindow {
		dropped = bb.evictExpiredLocked(bb.opts.now())
	}

	if len(bb.entries) == 0 {
		return zero, false
	}

	item := bb.entries[0].item
	bb.entries = bb.entries[1:]

	bb.stats.Read()
	bb.stats.UpdateSize(int64(len(bb.entries)))
	if bb.metrics != nil {
		bb.metrics.recordRead(len(bb.entries), bb.capacity)
	}

	bb.notFull.Signal()

	return item, true
}

// ReadBatch retrieves and removes up to max items in strategy order.
func (bb *boundedBuffer[T]) ReadBatch(max int) []T {
	if max <= 0 {
		return nil
	}

	var dropped []T
	defer bb.notifyDropped(&dropped)

	bb.mu.Lock()
	defer bb.mu.Unlock()

	if bb.strategy == TimeWindow {
		dropped = bb.evictExpiredLocked(bb.opts.now())
	}

	if len(bb.entries) == 0 {
		return nil
	}

	readCount := max
	if readCount > len(bb.entries) {
		readCount = len(bb.entries)
	}

	result := make([]T, readCount)
	for i := 0; i < readCount; i++ {
		result[i] = bb.entries[i].item
		bb.stats.Read()
	}
	bb.entries = bb.entries[readCount:]

	bb.stats.UpdateSize(int64(len(bb.entries)))
	if bb.metrics != nil {
		bb.metrics.updateSize(len(bb.entries), bb.capacity)
	}

	for i := 0; i < readCount; i++ {
		bb.notFull.Signal()
	}

	return result
}

// Peek retrieves the next item without removing it.
func (bb *boundedBuffer[T]) Peek() (T, bool) {
	bb.mu.RLock()
	defer bb.mu.RUnlock()

	var zero T

	if len(bb.entries) == 0 {
		return zero, false
	}

	bb.stats.Peek()
	if bb.metrics != nil {
		bb.metrics.recordPeek()
	}

	return bb.entries[0].item, true
}

// Size returns the current number of items in the buffer.
func (bb *boundedBuffer[T]) Size() int {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.entries)
}

// Capacity returns the maximum number of items the buffer can hold.
func (bb *boundedBuffer[T]) Capacity() int {
	return bb.capacity
}

// IsFull returns true if the buffer is at maximum capacity.
func (bb *boundedBuffer[T]) IsFull() bool {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.entries) == bb.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (bb *boundedBuffer[T]) IsEmpty() bool {
	bb.mu.RLock()
	defer bb.mu.RUnlock()
	return len(bb.entries) == 0
}

// Clear removes all items from the buffer.
func (bb *boundedBuffer[T]) Clear() {
	var dropped []T
	defer bb.notifyDropped(&dropped)

	bb.mu.Lock()
	defer bb.mu.Unlock()

	for _, e := range bb.entries {
		dropped = append(dropped, e.item)
	}
	bb.entries = bb.entries[:0]

	bb.stats.UpdateSize(0)
	if bb.metrics != nil {
		bb.metrics.updateSize(0, bb.capacity)
	}

	bb.notFull.Broadcast()
}

// Stats returns buffer statistics.
func (bb *boundedBuffer[T]) Stats() *Statistics {
	return bb.stats
}

// Close shuts down the buffer and wakes any blocked writers.
func (bb *boundedBuffer[T]) Close() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()

	if bb.closed {
		return nil
	}
	bb.closed = true

	bb.notFull.Broadcast()
	return nil
}

// priorityOf returns the priority of an item, or zero when no priority
// function is configured.
func (bb *boundedBuffer[T]) priorityOf(item T) int {
	if bb.opts.priorityFn == nil {
		return 0
	}
	return bb.opts.priorityFn(item)
}
