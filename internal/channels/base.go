// Package channels provides the backend adapters that turn an envelope into
// platform API calls, and the Manager that owns one actor per enabled backend.
package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alertrelay/alertrelay/internal/bus"
	"github.com/alertrelay/alertrelay/internal/config/backend"
	"github.com/alertrelay/alertrelay/internal/notifier"
)

// maxErrorBody caps how much of a failed response body is quoted in errors.
const maxErrorBody = 4096

// Base holds state shared by every adapter: identity, logger, retry policy
// and an optional rate limiter applied before each network call.
type Base struct {
	backend bus.Backend
	log     *zap.Logger
	policy  notifier.Policy
	limiter *rate.Limiter
}

// NewBase builds a Base from the backend's retry and rate settings.
// retryable classifies the adapter's own faults.
func NewBase(b bus.Backend, log *zap.Logger, retry backend.RetryConfig, ratePerSec float64, retryable func(error) bool) Base {
	if log == nil {
		log = zap.NewNop()
	}
	base := Base{backend: b, log: log}
	base.policy = notifier.Policy{
		Name:        string(b),
		MaxAttempts: retry.MaxAttempts,
		Delay:       retry.Delay.D(),
		Retryable:   retryable,
		OnRetry: func(attempt, maxAttempts int, err error) {
			log.Warn("retrying after error",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Error(err),
			)
		},
	}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		base.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return base
}

// Name returns the backend this adapter delivers to.
func (b *Base) Name() bus.Backend { return b.backend }

// SetSleep replaces the pause between retry attempts. Tests use it to avoid
// real delays.
func (b *Base) SetSleep(sleep notifier.SleepFunc) { b.policy.Sleep = sleep }

// attempt runs op under the retry policy, waiting on the rate limiter first.
func (b *Base) attempt(ctx context.Context, op func(ctx context.Context) error) error {
	return b.policy.Do(ctx, func(ctx context.Context) error {
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return op(ctx)
	})
}

// fanout calls send once per target. A failing target does not stop the
// others; each fault is logged and returned as a *notifier.TargetError.
func (b *Base) fanout(ctx context.Context, targets []string, send func(ctx context.Context, target string) error) error {
	var errs []error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := send(ctx, target); err != nil {
			b.log.Error("send to target failed", zap.String("target", redact(target)), zap.Error(err))
			errs = append(errs, &notifier.TargetError{Backend: b.backend, Target: target, Err: err})
		}
	}
	return errors.Join(errs...)
}

// StatusError is a non-success HTTP response from a webhook endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: string(body)}
}

// webhookRetryable treats rate limiting, server errors and network faults as
// transient. Context cancellation never is.
func webhookRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func newHTTPClient(timeout backend.Duration) *http.Client {
	t := timeout.D()
	if t <= 0 {
		t = 60 * time.Second
	}
	return &http.Client{Timeout: t}
}

// redact trims a target to something safe to log. Webhook URLs embed secrets
// in their path.
func redact(target string) string {
	const keep = 32
	if len(target) <= keep {
		return target
	}
	return target[:keep] + "..."
}
