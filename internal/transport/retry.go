package transport

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// retryTransport retries transient failures with exponential backoff.
// Network errors and 500/502/503/504 are retried; everything else,
// including 401/403/404/429, is returned as-is. A circuit breaker trips
// on consecutive connection-level failures so a dead backend fails fast
// instead of burning the full retry schedule per call.
type retryTransport struct {
	next       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

func newRetryTransport(next http.RoundTripper, maxRetries int, backoff time.Duration) *retryTransport {
	breaker := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "storefront-api",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[Transport] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})
	return &retryTransport{
		next:       next,
		maxRetries: maxRetries,
		backoff:    backoff,
		breaker:    breaker,
	}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempt := req
	var resp *http.Response
	var err error

	for try := 0; ; try++ {
		resp, err = t.breaker.Execute(func() (*http.Response, error) {
			return t.next.RoundTrip(attempt)
		})

		if err == nil && !retryableStatus(resp.StatusCode) {
			// 403 and 429 are never retried, but they are worth a trace.
			if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
				log.Printf("[Transport] %s %s returned %d, not retrying", req.Method, req.URL.Path, resp.StatusCode)
			}
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}
		if try == t.maxRetries {
			break
		}

		// Next attempt needs a rewindable body; give up when it isn't.
		next, cloneErr := cloneRequest(req)
		if cloneErr != nil {
			break
		}

		if err == nil {
			drainAndClose(resp)
			log.Printf("[Transport] %s %s returned %d, retry %d/%d", req.Method, req.URL.Path, resp.StatusCode, try+1, t.maxRetries)
		} else {
			log.Printf("[Transport] %s %s failed (%v), retry %d/%d", req.Method, req.URL.Path, err, try+1, t.maxRetries)
		}

		wait := t.backoff << try
		select {
		case <-time.After(wait):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		attempt = next
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
