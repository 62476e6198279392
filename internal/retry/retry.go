// Package retry wraps cenkalti/backoff with the bounded exponential policy
// used at every external adapter boundary.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retry loop.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64 // attempts after the first
	MaxElapsed      time.Duration
}

// DefaultPolicy matches the RPC client defaults: three retries starting at
// 500ms, capped at 10s between attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxRetries:      3,
		MaxElapsed:      30 * time.Second,
	}
}

// ErrExhausted wraps the last error once retries run out.
var ErrExhausted = errors.New("retries exhausted")

// Permanent marks err as non-retryable. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the context is
// done, or the policy is exhausted. An exhausted loop returns an error that
// matches both ErrExhausted and the last op error.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	b := p.backOff()
	bctx := backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)

	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = op(ctx)
		return lastErr
	}, bctx)
	if err == nil {
		return nil
	}

	var perm *backoff.PermanentError
	if errors.As(lastErr, &perm) {
		return perm.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return errors.Join(ctxErr, lastErr)
	}
	return errors.Join(ErrExhausted, err)
}

// IsExhausted reports whether err came from a retry loop that ran out of attempts.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = p.MaxElapsed
	b.Reset()
	return b
}
