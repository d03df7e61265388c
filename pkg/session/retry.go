package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
)

// Retry runs body up to attempts times, sleeping cooldown between attempts
// but not after the last one. It returns nil on the first success, the body's
// last error once attempts run out, or the context error when ctx ends before
// an attempt succeeds.
// Errors wrapped with Permanent stop the loop immediately.
//
// notify, when set, is called after every failed attempt that will be retried.
func Retry(ctx context.Context, attempts int, cooldown time.Duration, notify func(attempt int, err error, next time.Duration), body func(ctx context.Context, attempt int) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if cooldown < 0 {
		cooldown = 0
	}

	attempt := 0
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempt++
		return body(ctx, attempt)
	}

	if attempts == 1 {
		// WithMaxRetries treats zero as unlimited.
		err := op()
		if permanent, ok := err.(*backoff.PermanentError); ok {
			err = permanent.Err
		}
		return finish(ctx, err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cooldown), uint64(attempts-1)),
		ctx,
	)

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, next time.Duration) {
			notify(attempt, err, next)
		}
	}

	return finish(ctx, backoff.RetryNotify(op, b, onRetry))
}

// finish prefers the context error over the last attempt's error. A success
// stands even when ctx ended meanwhile.
func finish(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
