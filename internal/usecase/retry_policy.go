package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrRetryBudgetExhausted is returned when every attempt of a RetryPolicy is spent
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// RetryPolicy bounds a polling loop. Multiplier <= 1 keeps a fixed interval.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
	Multiplier  float64
}

// Default policies
var (
	DefaultPollPolicy    = RetryPolicy{MaxAttempts: 10, Interval: 5 * time.Second}
	DefaultExtractPolicy = RetryPolicy{MaxAttempts: 5, Interval: 2 * time.Second}
	DefaultCancelPolicy  = RetryPolicy{MaxAttempts: 10, Interval: time.Second}
)

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) newBackOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Interval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = p.Interval * time.Duration(p.attempts())
	b.Reset()
	return b
}

// Budget is the total time Do spends waiting between attempts when every
// attempt is used
func (p RetryPolicy) Budget() time.Duration {
	var total time.Duration
	wait := p.Interval
	limit := p.Interval * time.Duration(p.attempts())
	for i := 1; i < p.attempts(); i++ {
		total += wait
		if p.Multiplier > 1 {
			wait = min(time.Duration(float64(wait)*p.Multiplier), limit)
		}
	}
	return total
}

// Do calls op until it reports done, returns a permanent error, or the
// attempt budget runs out. Errors wrapped with backoff.Permanent stop the
// loop and are returned unwrapped; any other error is retried.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) (bool, error)) error {
	b := p.newBackOff()
	var lastErr error

	for attempt := 1; ; attempt++ {
		done, err := op(attempt)
		if err != nil {
			var permanent *backoff.PermanentError
			if errors.As(err, &permanent) {
				return permanent.Err
			}
			lastErr = err
		} else if done {
			return nil
		} else {
			lastErr = nil
		}

		if attempt >= p.attempts() {
			break
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = p.Interval
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryBudgetExhausted, p.attempts(), lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrRetryBudgetExhausted, p.attempts())
}
