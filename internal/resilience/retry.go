package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures [Retry]. The zero value makes a single attempt.
type RetryPolicy struct {
	// Retries is the number of additional attempts after the first.
	Retries int

	// InitialInterval is the first backoff delay. Default: 500ms.
	InitialInterval time.Duration

	// MaxInterval caps a single backoff delay. Default: 5s.
	MaxInterval time.Duration
}

// Retry calls fn until it succeeds, returns a permanent error, the retry
// budget is spent, or ctx is done. Delays grow exponentially with jitter.
//
// Errors from [Permanent], [ErrCircuitOpen], and context errors are not
// retried. The last error from fn is returned; when ctx ended the wait, the
// context error is wrapped around it.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = 500 * time.Millisecond
	}
	b.MaxInterval = p.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = 5 * time.Second
	}
	b.MaxElapsedTime = 0

	retries := max(p.Retries, 0)
	var lastErr error
	op := func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if isTerminal(ctx, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
	if err == nil {
		return nil
	}
	if lastErr == nil {
		return err
	}
	if pe, ok := lastErr.(*permanentError); ok {
		lastErr = pe.err
	}
	if cerr := ctx.Err(); cerr != nil && !errors.Is(lastErr, cerr) {
		return fmt.Errorf("%w: %w", cerr, lastErr)
	}
	return lastErr
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so [Retry] returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isTerminal(ctx context.Context, err error) bool {
	var pe *permanentError
	return ctx.Err() != nil ||
		errors.As(err, &pe) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
