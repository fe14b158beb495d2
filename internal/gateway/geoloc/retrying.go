package geoloc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"ferry77-dispatch/internal/domain"
	"ferry77-dispatch/internal/logx"
)

type counter interface {
	Inc()
}

// RetryConfig describes RetryingProvider behaviour.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryingProvider wraps a Provider with bounded exponential backoff for
// transient failures.
type RetryingProvider struct {
	next    Provider
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
	sleep   func(time.Duration)
}

// NewRetryingProvider checks that next is not nil and returns a RetryingProvider.
func NewRetryingProvider(next Provider, logger logx.Logger, retries counter, cfg RetryConfig) *RetryingProvider {
	if next == nil {
		return nil
	}
	return &RetryingProvider{next: next, logger: logger, retries: retries, cfg: cfg, sleep: time.Sleep}
}

// Resolve looks up an address, retrying transient failures.
func (g *RetryingProvider) Resolve(ctx context.Context, address string) (*domain.Coordinates, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		loc, err := g.next.Resolve(ctx, address)
		if err == nil {
			return loc, nil
		}
		lastErr = err

		if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
			break
		}

		delay := backoff(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt)
		if g.retries != nil {
			g.retries.Inc()
		}
		g.logger.Warn("geoloc gateway retry",
			logx.String("method", "Resolve"),
			logx.Int("attempt", attempt),
			logx.Duration("delay", delay),
			logx.Any("err", err),
		)
		if !sleepWithContext(ctx, delay) {
			break
		}
	}
	return nil, lastErr
}

// isRetryable treats timeouts, connection failures, throttling and server
// errors as transient.
func isRetryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var st *StatusError
	if errors.As(err, &st) {
		return st.Code == http.StatusTooManyRequests || st.Code >= http.StatusInternalServerError
	}
	return false
}

// backoff computes the retry delay.
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
