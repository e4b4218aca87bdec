package store

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/ariefcatur/go-tradein-orders/internal/apperr"
)

type Policy struct {
	MaxAttempts int
	// BaseDelay is the upper bound of the jittered pause before the second
	// attempt; it doubles per attempt. Zero retries immediately.
	BaseDelay time.Duration
	// OnRetry observes each conflict that is about to be retried.
	OnRetry func(attempt int, err error)
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 2 * time.Millisecond}
}

const maxDelay = 50 * time.Millisecond

// Retry runs attempt until it succeeds, fails with anything other than
// ErrTxConflict, or MaxAttempts conflicts have occurred. Exhaustion is
// reported as apperr.Transient.
func Retry(ctx context.Context, p Policy, attempt func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	var err error
	for i := 1; i <= p.MaxAttempts; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = attempt(ctx)
		if !errors.Is(err, ErrTxConflict) {
			return err
		}
		if i == p.MaxAttempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(i, err)
		}
		if d := backoff(p.BaseDelay, i); d > 0 {
			t := time.NewTimer(d)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
	}
	return apperr.Transient(err)
}

func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	return rand.N(d) + 1
}
