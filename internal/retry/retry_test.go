package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// noSleep records requested delays instead of waiting.
func noSleep(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	bad := DefaultPolicy()
	bad.MaxAttempts = 0
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Multiplier = 0.5
	assert.Error(t, bad.Validate())

	bad = DefaultPolicy()
	bad.Jitter = 1.0
	assert.Error(t, bad.Validate())
}

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	_, err := New(Policy{MaxAttempts: 0})
	assert.Error(t, err)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var delays []time.Duration
	r, err := New(DefaultPolicy(), noSleep(&delays))
	require.NoError(t, err)

	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, delays)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var delays []time.Duration
	r, err := New(Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2.0}, noSleep(&delays))
	require.NoError(t, err)

	calls := 0
	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.Transient(errors.CodeNetwork, "flaky", nil)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Len(t, delays, 2)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var delays []time.Duration
	r, err := New(Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2.0}, noSleep(&delays))
	require.NoError(t, err)

	boom := errors.Transient(errors.CodeNetwork, "down", nil)
	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
	// Two waits between three attempts, never after the last
	assert.Len(t, delays, 2)
}

func TestDo_BackoffGrowsWithoutJitter(t *testing.T) {
	var delays []time.Duration
	r, err := New(Policy{MaxAttempts: 4, InitialDelay: time.Second, Multiplier: 2.0}, noSleep(&delays))
	require.NoError(t, err)

	_, _ = r.Do(context.Background(), "op", func(ctx context.Context) error {
		return errors.Transient(errors.CodeNetwork, "down", nil)
	})
	require.Len(t, delays, 3)
	assert.Equal(t, 1*time.Second, delays[0])
	assert.Equal(t, 2*time.Second, delays[1])
	assert.Equal(t, 4*time.Second, delays[2])
}

func TestDo_MaxDelayCapsBackoff(t *testing.T) {
	var delays []time.Duration
	r, err := New(Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 10.0, MaxDelay: 3 * time.Second}, noSleep(&delays))
	require.NoError(t, err)

	_, _ = r.Do(context.Background(), "op", func(ctx context.Context) error {
		return errors.Transient(errors.CodeNetwork, "down", nil)
	})
	require.Len(t, delays, 4)
	for _, d := range delays {
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestDo_DefinitiveErrorStopsImmediately(t *testing.T) {
	var delays []time.Duration
	r, err := New(DefaultPolicy(), noSleep(&delays))
	require.NoError(t, err)

	calls := 0
	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return errors.Definitive(errors.CodeRepoNotFound, "gone", nil)
	})
	assert.True(t, errors.IsDefinitive(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDo_PermanentWrapperStops(t *testing.T) {
	r, err := New(DefaultPolicy(), noSleep(new([]time.Duration)))
	require.NoError(t, err)

	inner := stderrors.New("no retry")
	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		return Permanent(inner)
	})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 1, attempts)
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	r, err := New(DefaultPolicy(), noSleep(new([]time.Duration)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempts, err := r.Do(ctx, "op", func(ctx context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
	assert.Equal(t, 0, calls)
}

func TestDo_CancelDuringBackoffWait(t *testing.T) {
	r, err := New(Policy{MaxAttempts: 3, InitialDelay: time.Minute, Multiplier: 2.0})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	var attempts int
	var doErr error
	go func() {
		attempts, doErr = r.Do(ctx, "op", func(ctx context.Context) error {
			calls++
			return errors.Transient(errors.CodeNetwork, "down", nil)
		})
		close(done)
	}()

	// Give the first attempt time to fail and enter the backoff wait
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation during backoff")
	}
	assert.ErrorIs(t, doErr, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledErrorFromOpStops(t *testing.T) {
	r, err := New(DefaultPolicy(), noSleep(new([]time.Duration)))
	require.NoError(t, err)

	attempts, err := r.Do(context.Background(), "op", func(ctx context.Context) error {
		return errors.Cancelled("interrupted")
	})
	assert.True(t, errors.IsCancelled(err))
	assert.Equal(t, 1, attempts)
}
