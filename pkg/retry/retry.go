// Package retry provides the bounded exponential-backoff policy used around
// storage calls. Terminal errors (anything carrying an AppError taxonomy
// code) abort immediately; transient transport faults are retried up to
// MaxAttempts before surfacing as SERVICE_UNAVAILABLE.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "helloev/pkg/errors"
)

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

func NewPolicy(maxAttempts int, initialDelay time.Duration) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 100 * time.Millisecond
	}
	return Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     5 * time.Second,
	}
}

// Do runs op until it succeeds, fails terminally, or attempts are exhausted.
// AppErrors are treated as terminal and returned unchanged; any other error
// after the final attempt is wrapped as SERVICE_UNAVAILABLE.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = p.InitialDelay
	expo.MaxInterval = p.MaxDelay

	var bo backoff.BackOff = backoff.WithMaxRetries(expo, uint64(p.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	err := backoff.Retry(func() error {
		opErr := op(ctx)
		if opErr == nil {
			return nil
		}
		if apperrors.IsAppError(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}, bo)

	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	if ctx.Err() != nil {
		return apperrors.Unavailable("request cancelled before storage recovered", err)
	}
	return apperrors.Unavailable("storage temporarily unavailable", err)
}
