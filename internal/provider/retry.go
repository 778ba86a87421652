package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/oudcrm-automation/internal/errors"
)

// HTTPDoer is satisfied by *http.Client and by test doubles.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryPolicy bounds every provider call: each attempt runs under Timeout,
// and only infrastructure failures are retried, at most MaxRetries times.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Timeout: 10 * time.Second, MaxRetries: 1, Backoff: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// retry budget is spent.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := p.attempt(ctx, fn)
		if err == nil || !appErrors.IsRetryable(err) || attempt >= p.MaxRetries {
			return err
		}

		delay := p.Backoff << attempt
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return err
		}
	}
}

func (p RetryPolicy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(actx)
}

const maxBody = 1 << 20

// roundTrip executes req and reads the body. Transport failures, including
// timeouts, are infrastructure errors.
func roundTrip(client HTTPDoer, provider string, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, appErrors.Infrastructure(provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return resp.StatusCode, nil, appErrors.Infrastructure(provider, fmt.Errorf("read response: %w", err))
	}
	return resp.StatusCode, body, nil
}

// statusError classifies a non-2xx HTTP answer: 429 and 5xx are transient,
// everything else is the provider rejecting the request.
func statusError(provider string, code int, reason string) error {
	if reason == "" {
		reason = http.StatusText(code)
	}
	if code == http.StatusTooManyRequests || code >= 500 {
		return appErrors.Infrastructure(provider, fmt.Errorf("http %d: %s", code, reason))
	}
	return appErrors.Rejection(provider, fmt.Sprintf("http %d: %s", code, reason))
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func snippet(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit])
	}
	return string(body)
}
