package notifier

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy is a fixed-delay bounded retry policy. Each backend owns one.
type Policy struct {
	// Name labels retry metrics, usually the backend name.
	Name string
	// MaxAttempts bounds the total number of attempts. Values below 1 mean 1.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Retryable reports whether a fault is transient. Nil means nothing is.
	Retryable func(error) bool
	// Sleep defaults to the package Sleep.
	Sleep SleepFunc
	// OnRetry, if set, is called before each pause.
	OnRetry func(attempt, maxAttempts int, err error)
}

// Do runs op until it succeeds, fails with a non-retryable fault, or the
// attempt budget is spent. A spent budget yields an *ExhaustedError.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		last = err
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, attempts, err)
		}
		retriesTotal.WithLabelValues(p.Name).Inc()
		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}
