// Package retry executes fallible operations with bounded retry and
// exponential backoff.
//
// The loop is an explicit state machine: attempt accounting, cancellation
// checks, and the transient/definitive decision all happen at named points
// rather than inside a library callback. Delay and jitter math comes from
// cenkalti/backoff, whose Clock is injectable for tests.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/randalmurphal/gh-backup/internal/errors"
)

// Policy configures bounded retry with exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// Multiplier scales the delay after each failed attempt.
	Multiplier float64
	// Jitter is the randomization factor in [0, 1); the actual delay is
	// uniform in [d*(1-Jitter), d*(1+Jitter)].
	Jitter float64
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
}

// DefaultPolicy mirrors the clone retry defaults: three attempts, delays
// starting at two seconds, doubling, capped at thirty seconds.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.25,
		MaxDelay:     30 * time.Second,
	}
}

// Validate checks the policy invariants: attempts >= 1, non-negative delay,
// monotonically non-decreasing backoff.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.InitialDelay < 0 {
		return fmt.Errorf("retry: initial delay must be non-negative, got %s", p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be >= 1, got %g", p.Multiplier)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("retry: jitter must be in [0, 1), got %g", p.Jitter)
	}
	return nil
}

// Permanent marks err as definitive so Do stops without further attempts.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock overrides the clock used for backoff timing.
func WithClock(c backoff.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithSleep overrides the waiting function. Tests use this to observe
// requested delays without real waits.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// WithLogger sets the logger for retry warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// Runner executes operations under a Policy.
type Runner struct {
	policy Policy
	clock  backoff.Clock
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger
}

// New creates a Runner. The policy is validated once here so Do never has
// to re-check it.
func New(p Policy, opts ...Option) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		policy: p,
		clock:  backoff.SystemClock,
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Do runs op until it succeeds, fails definitively, is cancelled, or the
// attempt budget is exhausted. It returns the number of attempts made and
// the last error. Cancellation is checked before every attempt and
// interrupts any backoff wait.
func (r *Runner) Do(ctx context.Context, name string, op func(ctx context.Context) error) (int, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.policy.InitialDelay,
		RandomizationFactor: r.policy.Jitter,
		Multiplier:          r.policy.Multiplier,
		MaxInterval:         r.maxInterval(),
		MaxElapsedTime:      0, // attempts bound the loop, not wall time
		Stop:                backoff.Stop,
		Clock:               r.clock,
	}
	b.Reset()

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		var perm *backoff.PermanentError
		if stderrors.As(lastErr, &perm) {
			return attempt, perm.Unwrap()
		}
		if errors.IsDefinitive(lastErr) || errors.IsCancelled(lastErr) {
			return attempt, lastErr
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		r.logger.Warn("operation failed, retrying",
			"op", name,
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
			"error", lastErr)
		if err := r.sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}
	return r.policy.MaxAttempts, lastErr
}

func (r *Runner) maxInterval() time.Duration {
	if r.policy.MaxDelay > 0 {
		return r.policy.MaxDelay
	}
	// Effectively uncapped; ExponentialBackOff requires a positive value.
	return 24 * time.Hour
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
