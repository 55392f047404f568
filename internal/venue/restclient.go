package venue

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	cb "github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// RESTClient wraps net/http with the retry/backoff/circuit-breaker/rate-limit
// stack every venue's funding/OI polling loop shares.
//
// Retry behavior matches original_source/data_fetcher/rest_client.py: 10s
// per-request timeout, 3 retries, backoff = min(30s, attempt*0.75s).
// Circuit breaker settings follow the teacher's infra/breakers/breakers.go
// (trip after 3 consecutive failures, or >5% failure rate over 20+ requests).
type RESTClient struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *cb.CircuitBreaker
}

// NewRESTClient builds a client rate-limited to rps requests/sec (burst 1)
// for the named venue.
func NewRESTClient(venueName string, rps float64) *RESTClient {
	settings := cb.Settings{Name: venueName}
	settings.Interval = 60 * time.Second
	settings.Timeout = 60 * time.Second
	settings.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}

	return &RESTClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: cb.NewCircuitBreaker(settings),
	}
}

// Get issues a GET request with up to 3 retries and 0.75*attempt backoff,
// gated by the rate limiter and circuit breaker.
func (c *RESTClient) Get(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.getWithRetry(ctx, url)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *RESTClient) getWithRetry(ctx context.Context, url string) ([]byte, error) {
	const maxRetries = 3
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		wait := time.Duration(float64(attempt)*0.75*float64(time.Second))
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		if !sleepOrDone(ctx, wait) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("GET %s failed after %d attempts: %w", url, maxRetries, lastErr)
}

func (c *RESTClient) doOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: status %d: %s", url, resp.StatusCode, string(body))
	}
	return body, nil
}
