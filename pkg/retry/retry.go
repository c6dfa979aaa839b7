// Package retry runs an operation again with exponential backoff and jitter.
// The progression service uses it to repeat whole load-compute-store cycles
// after optimistic concurrency conflicts and to retry failing event handlers.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MARKERS
// ══════════════════════════════════════════════════════════════════════════════

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Retryable marks err for retry under the default policy.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err}
}

// Permanent stops the loop at once whatever the policy says. Do returns
// the unwrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return "retry: attempts exhausted: " + e.Err.Error()
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the retry policy.
type Config struct {
	// MaxAttempts counts the first call.
	MaxAttempts int

	// Delay before retry n is InitialDelay * Multiplier^(n-1), capped at
	// MaxDelay and spread by ±JitterFactor.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64

	// RetryIf picks the errors to retry. Nil retries only errors marked
	// with Retryable.
	RetryIf func(error) bool

	// OnRetry runs before each sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Option adjusts a Config.
type Option func(*Config)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithInitialDelay sets the delay before the first retry.
func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.InitialDelay = d
		}
	}
}

// WithMaxDelay caps the delay between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

// WithJitter sets the jitter factor in [0, 1].
func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.JitterFactor = j
		}
	}
}

// WithRetryIf sets the retry predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// WithOnRetry sets the retry callback.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(c *Config) { c.OnRetry = fn }
}

// ══════════════════════════════════════════════════════════════════════════════
// RETRIER
// ══════════════════════════════════════════════════════════════════════════════

// Retrier is immutable and safe for concurrent use.
type Retrier struct {
	config Config
}

// New creates a Retrier: three attempts, 100ms doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	config := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Retrier{config: config}
}

// ConflictRetrier repeats a whole read-modify-write cycle while isConflict
// matches. Delays are short: the competing writer usually finishes within
// one round trip.
func ConflictRetrier(maxAttempts int, isConflict func(error) bool, opts ...Option) *Retrier {
	base := []Option{
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(10 * time.Millisecond),
		WithMaxDelay(250 * time.Millisecond),
		WithJitter(0.5),
		WithRetryIf(isConflict),
	}
	return New(append(base, opts...)...)
}

// MaxAttempts returns the configured attempt budget.
func (r *Retrier) MaxAttempts() int {
	return r.config.MaxAttempts
}

// Do calls op until it succeeds or an error ends the loop:
//   - a Permanent error returns its cause;
//   - an error the policy does not retry is returned as is;
//   - running out of attempts returns an *ExhaustedError around the last
//     failure, so errors.Is still matches it;
//   - a cancelled ctx returns the last failure, or ctx.Err() before any call.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return last
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if !r.retries(err) {
			return err
		}
		if attempt >= r.config.MaxAttempts {
			var marked retryableError
			if errors.As(err, &marked) {
				err = marked.err
			}
			return &ExhaustedError{Attempts: attempt, Err: err}
		}

		delay := r.backoff(attempt)
		if r.config.OnRetry != nil {
			r.config.OnRetry(attempt, err, delay)
		}
		if delay > 0 {
			if !sleep(ctx, delay) {
				return last
			}
		}
	}
}

func (r *Retrier) retries(err error) bool {
	if r.config.RetryIf != nil {
		return r.config.RetryIf(err)
	}
	var marked retryableError
	return errors.As(err, &marked)
}

func (r *Retrier) backoff(attempt int) time.Duration {
	d := float64(r.config.InitialDelay)
	for i := 1; i < attempt && d < float64(r.config.MaxDelay); i++ {
		d *= r.config.Multiplier
	}
	d = min(d, float64(r.config.MaxDelay))
	if j := r.config.JitterFactor; j > 0 {
		d *= 1 + j*(2*rand.Float64()-1)
	}
	return time.Duration(max(d, 0))
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Do creates a Retrier from opts and runs op.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// DoWithData is Do for operations that return a value.
func DoWithData[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}
