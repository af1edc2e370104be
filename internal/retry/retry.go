// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// Policy describes how often and how patiently an operation is retried.
type Policy struct {
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration // zero means unbounded

	// Retryable reports whether err is worth another attempt. Nil retries every error.
	Retryable func(err error) bool

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed or a non-retryable error stopped the policy.
type ExhaustedError struct {
	Name     string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempt(s): %v", e.Name, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Delay returns the wait before attempt n+1, where n counts finished attempts starting at 1.
func (p Policy) Delay(n int) time.Duration {
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= factor
		if p.MaxDelay > 0 && time.Duration(d) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempts run out.
// Context cancellation is returned as is, never wrapped in ExhaustedError.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var err error
	for n := 1; n <= attempts; n++ {
		if err = op(ctx); err == nil {
			if n > 1 {
				log.Debug().Str("policy", p.Name).Int("attempts", n).Msg("Succeeded after retries")
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return &ExhaustedError{Name: p.Name, Attempts: n, Err: err}
		}
		if n == attempts {
			break
		}

		delay := p.Delay(n)
		log.Warn().
			Err(err).
			Str("policy", p.Name).
			Int("attempt", n).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Msg("Attempt failed, retrying")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Name: p.Name, Attempts: attempts, Err: err}
}

// IsExhausted reports whether err came from a policy that gave up.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
