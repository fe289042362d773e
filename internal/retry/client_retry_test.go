package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientDoSucceedsAfterTransientErrors(t *testing.T) {
	var calls int32
	c := NewClient(nil, Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second})

	err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoStopsOnNonTransientError(t *testing.T) {
	var calls int32
	c := NewClient(nil, Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, Timeout: time.Second})

	err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("invalid symbol")
	})

	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "a non-transient error must not be retried")
}

func TestClientDoExhaustsRetries(t *testing.T) {
	var calls int32
	c := NewClient(nil, Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: time.Second})

	err := c.Do(context.Background(), "fetch", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("rate limit exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "MaxRetries=2 allows 3 total attempts")
}

func TestClientDoRespectsContextCancellation(t *testing.T) {
	c := NewClient(nil, Config{MaxRetries: 10, InitialBackoff: 50 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err := c.Do(ctx, "fetch", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("timeout")
	})

	require.Error(t, err)
}

func TestClientDoFixedBackoffUsesHistoricalPaginatorShape(t *testing.T) {
	var calls int32
	c := NewClient(nil, Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Timeout: time.Second})

	sleeps := []time.Duration{time.Millisecond, time.Millisecond}
	err := c.DoFixedBackoff(context.Background(), "historical bars", sleeps, func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("rate limit")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientDoFixedBackoffSurfacesFailureAfterAllAttempts(t *testing.T) {
	var calls int32
	c := NewClient(nil, Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Timeout: time.Second})

	sleeps := []time.Duration{time.Millisecond}
	err := c.DoFixedBackoff(context.Background(), "historical bars", sleeps, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("network unreachable")
	})

	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIsTransientErrorClassification(t *testing.T) {
	c := NewClient(nil)

	transient := []string{"dial tcp: i/o timeout", "429 Too Many Requests", "connection reset by peer", "EOF", "temporarily unavailable"}
	for _, msg := range transient {
		assert.True(t, c.isTransientError(errors.New(msg)), msg)
	}

	permanent := []string{"invalid api key", "symbol not found", "insufficient funds"}
	for _, msg := range permanent {
		assert.False(t, c.isTransientError(errors.New(msg)), msg)
	}

	assert.False(t, c.isTransientError(nil))
}
