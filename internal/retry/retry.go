// Package retry wraps a single network attempt with bounded, backed-off
// retries. Only errors the attempt marks retryable re-enter the loop;
// anything else propagates to the caller immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

// Policy configures bounded retries around an operation.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	exponential bool
	logger      *logrus.Logger
}

// NewPolicy creates a retry policy. maxAttempts counts the first attempt,
// so maxAttempts=3 allows two retries after the initial failure.
func NewPolicy(maxAttempts int, baseDelay time.Duration, exponential bool, logger *logrus.Logger) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		exponential: exponential,
		logger:      logger,
	}
}

func (p *Policy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.exponential {
		b = retry.NewExponential(p.baseDelay)
	} else {
		b = retry.NewConstant(p.baseDelay)
	}
	return retry.WithMaxRetries(uint64(p.maxAttempts-1), b)
}

// Do runs fn under the policy. The last error is returned unchanged once
// the retry budget is exhausted.
func (p *Policy) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"operation": label,
				"attempt":   attempt,
			}).Warn("attempt failed")
		}
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// Result runs fn under the policy and returns its value.
func Result[T any](ctx context.Context, p *Policy, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, label, func(ctx context.Context) error {
		var ferr error
		out, ferr = fn(ctx)
		return ferr
	})
	return out, err
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as eligible for another attempt.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err carries the Retryable marker.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
