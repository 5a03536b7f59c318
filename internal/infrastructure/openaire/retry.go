package openaire

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// retryPolicy retries transient failures with jittered exponential backoff.
type retryPolicy struct {
	maxAttempts int
	base        time.Duration
	cap         time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func newRetryPolicy(maxAttempts int, base, cap time.Duration) *retryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if base <= 0 {
		base = time.Second
	}
	if cap < base {
		cap = base
	}
	return &retryPolicy{
		maxAttempts: maxAttempts,
		base:        base,
		cap:         cap,
		sleep:       sleepCtx,
	}
}

// do runs fn until it succeeds, fails permanently, or attempts are exhausted.
// Returns the attempt count alongside the final error.
func (p *retryPolicy) do(ctx context.Context, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}
		if !isTransient(err) || attempt == p.maxAttempts {
			return attempt, err
		}
		if serr := p.sleep(ctx, p.backoff(attempt)); serr != nil {
			return attempt, serr
		}
	}
	return p.maxAttempts, err
}

// backoff doubles per attempt up to the cap, with full jitter so parallel
// workers do not retry in lockstep.
func (p *retryPolicy) backoff(attempt int) time.Duration {
	d := p.base << (attempt - 1)
	if d > p.cap || d <= 0 {
		d = p.cap
	}
	return time.Duration(rand.Int63n(int64(d)) + int64(d)/2)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// httpStatusError marks a non-2xx API reply so the retry policy can classify
// it.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status)
}

// isTransient reports whether a retry can plausibly help: rate limiting,
// server errors, and network-level failures qualify.
func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		return statusErr.status == http.StatusTooManyRequests || statusErr.status >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
