package buffer

import (
	"time"

	"github.com/funkyflowstudios/synapse-hub-sub000/metric"
)

// Option configures buffer behavior using the functional options pattern.
type Option[T any] func(*bufferOptions[T])

// bufferOptions holds internal configuration for buffer instances.
// Stats are always collected; metrics are optional via WithMetrics.
type bufferOptions[T any] struct {
	overflowPolicy OverflowPolicy
	dropCallback   DropCallback[T]
	priorityFn     PriorityFn[T]
	window         time.Duration
	now            nowFn

	// metricsReg is optional - if provided, buffer stats are also
	// exposed as Prometheus metrics
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithOverflowPolicy sets the overflow behavior for the buffer.
// Defaults to DropOldest if not specified.
func WithOverflowPolicy[T any](policy OverflowPolicy) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.overflowPolicy = policy
	}
}

// WithMetrics enables Prometheus metrics export for buffer statistics.
// If registry is nil or prefix is empty, this option is ignored.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *bufferOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a callback invoked with each item dropped or
// evicted by policy.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.dropCallback = callback
	}
}

// WithPriorityFn sets the priority extractor required by the Priority
// strategy. Larger values drain first.
func WithPriorityFn[T any](fn PriorityFn[T]) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.priorityFn = fn
	}
}

// WithWindow sets the retention window for the TimeWindow strategy.
// Items older than the window are evicted on the next write or read.
func WithWindow[T any](window time.Duration) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.window = window
	}
}

// withNow overrides the clock used for time-window eviction. Test hook.
func withNow[T any](now nowFn) Option[T] {
	return func(opts *bufferOptions[T]) {
		opts.now = now
	}
}

// applyOptions applies functional options to create final buffer configuration.
func applyOptions[T any](options ...Option[T]) *bufferOptions[T] {
	opts := &bufferOptions[T]{
		overflowPolicy: DropOldest,
		window:         time.Minute,
		now:            time.Now,
	}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
