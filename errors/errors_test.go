package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestRecoveryAction_String(t *testing.T) {
	tests := []struct {
		action   RecoveryAction
		expected string
	}{
		{RecoveryNone, "none"},
		{RecoveryRetry, "retry"},
		{RecoveryReset, "reset"},
		{RecoveryRecalibrate, "recalibrate"},
		{RecoveryManual, "manual"},
		{RecoveryAction(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.action.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection failed", ErrConnectionFailed, true},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"command timeout", ErrCommandTimeout, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"invalid command", ErrInvalidCommand, false},
		{"protocol mismatch", ErrProtocolMismatch, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"network error", fmt.Errorf("network unreachable"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, IsTransient(test.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	assert.True(t, IsInvalid(ErrInvalidCommand))
	assert.True(t, IsInvalid(ErrUnsupportedOperation))
	assert.False(t, IsInvalid(ErrConnectionLost))
	assert.False(t, IsInvalid(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsFatal(ErrProtocolMismatch))
	assert.False(t, IsFatal(ErrConnectionTimeout))
	assert.False(t, IsFatal(nil))
}

func TestWrapPreservesSentinel(t *testing.T) {
	wrapped := WrapTransient(ErrConnectionLost, "Dispatcher", "SendCommand", "write envelope")
	require.Error(t, wrapped)

	assert.True(t, errors.Is(wrapped, ErrConnectionLost))
	assert.True(t, IsTransient(wrapped))
	assert.Contains(t, wrapped.Error(), "Dispatcher.SendCommand: write envelope failed")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "C", "M", "a"))
	assert.NoError(t, WrapTransient(nil, "C", "M", "a"))
	assert.NoError(t, WrapInvalid(nil, "C", "M", "a"))
	assert.NoError(t, WrapFatal(nil, "C", "M", "a"))
}

func TestWrapInvalidOverridesClassification(t *testing.T) {
	// Wrapping a normally-transient sentinel as invalid wins
	wrapped := WrapInvalid(ErrConnectionTimeout, "Codec", "Decode", "validation")
	assert.True(t, IsInvalid(wrapped))
	assert.False(t, IsTransient(wrapped))
}

func TestWithRecovery(t *testing.T) {
	base := WrapTransient(ErrConnectionFailed, "StateMachine", "connect", "dial")

	var ce *ClassifiedError
	require.True(t, errors.As(base, &ce))

	withAdvice := ce.WithRecovery(RecoveryReset)
	assert.Equal(t, RecoveryReset, withAdvice.Recovery)
	// Original is untouched
	assert.Equal(t, RecoveryNone, ce.Recovery)

	assert.Equal(t, RecoveryReset, RecoveryFor(withAdvice))
	assert.Equal(t, RecoveryNone, RecoveryFor(fmt.Errorf("plain")))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(ErrConnectionLost))
	assert.Equal(t, ErrorInvalid, Classify(ErrInvalidCommand))
	assert.Equal(t, ErrorFatal, Classify(ErrProtocolMismatch))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("some unknown condition")))
}

func TestRetryConfig_BackoffDelay(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, 100*time.Millisecond, rc.BackoffDelay(0))
	assert.Equal(t, 200*time.Millisecond, rc.BackoffDelay(1))
	assert.Equal(t, 400*time.Millisecond, rc.BackoffDelay(2))
	// Capped at MaxDelay
	assert.Equal(t, 1*time.Second, rc.BackoffDelay(10))
}

func TestRetryConfig_ShouldRetry(t *testing.T) {
	rc := DefaultRetryConfig()

	assert.True(t, rc.ShouldRetry(ErrConnectionTimeout, 0))
	assert.False(t, rc.ShouldRetry(ErrConnectionTimeout, rc.MaxRetries))
	assert.False(t, rc.ShouldRetry(ErrInvalidCommand, 0))
	assert.False(t, rc.ShouldRetry(nil, 0))
}

func TestToRetryConfig(t *testing.T) {
	rc := RetryConfig{
		MaxRetries:    2,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}

	cfg := rc.ToRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialDelay)
	assert.True(t, cfg.AddJitter)
}
