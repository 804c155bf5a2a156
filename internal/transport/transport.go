// Package transport implements the HTTP client stack shared by every
// storefront API call: bearer-token attachment, cache hints, retry with
// exponential backoff behind a circuit breaker, and transparent
// refresh-and-retry on 401.
package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/example/storefront-client/internal/auth"
)

// defaultExemptPaths are the endpoints that never carry a bearer token
// and never participate in the 401 refresh flow.
var defaultExemptPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
}

// Config assembles a Transport.
type Config struct {
	Session   *auth.Session
	Refresher *auth.Refresher

	// Base is the underlying RoundTripper; defaults to an otel-instrumented
	// http.DefaultTransport.
	Base http.RoundTripper

	// ExemptPaths overrides the default auth allow-list when non-nil.
	ExemptPaths []string

	// MaxRetries and Backoff tune the retry schedule; zero values get the
	// production defaults (3 retries at 1s, 2s, 4s).
	MaxRetries int
	Backoff    time.Duration
}

// Transport is an http.RoundTripper for authenticated storefront calls.
type Transport struct {
	base      http.RoundTripper
	session   *auth.Session
	refresher *auth.Refresher
	exempt    []string
}

// New builds the full transport chain. From the caller inward: auth /
// 401-refresh, cache hints, retry with breaker, instrumented base.
func New(cfg Config) *Transport {
	base := cfg.Base
	if base == nil {
		base = otelhttp.NewTransport(http.DefaultTransport)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	backoff := cfg.Backoff
	if backoff == 0 {
		backoff = time.Second
	}
	exempt := cfg.ExemptPaths
	if exempt == nil {
		exempt = defaultExemptPaths
	}

	chain := newRetryTransport(base, maxRetries, backoff)
	return &Transport{
		base:      &hintTransport{next: chain},
		session:   cfg.Session,
		refresher: cfg.Refresher,
		exempt:    exempt,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.session == nil || t.isExempt(req.URL.Path) {
		return t.base.RoundTrip(req)
	}

	resp, err := t.base.RoundTrip(t.withToken(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One refresh, shared across concurrent 401s, then replay the request
	// with the new token.
	drainAndClose(resp)
	if t.refresher == nil {
		return nil, auth.ErrSessionExpired
	}
	if err := t.refresher.Refresh(req.Context()); err != nil {
		return nil, fmt.Errorf("refresh after 401 failed: %w", err)
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	return t.base.RoundTrip(t.withToken(retry))
}

// withToken attaches the bearer token when one is present and not inside
// the expiry buffer. An expired token is deliberately left off: the call
// 401s and goes through the refresh path.
func (t *Transport) withToken(req *http.Request) *http.Request {
	if !t.session.TokenValid() {
		return req
	}
	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+t.session.AccessToken())
	return out
}

func (t *Transport) isExempt(path string) bool {
	for _, p := range t.exempt {
		if strings.HasSuffix(path, p) {
			return true
		}
	}
	return false
}

// cloneRequest produces a replayable copy of req, rewinding the body via
// GetBody. Requests with a non-rewindable body cannot be replayed.
func cloneRequest(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot replay request with non-rewindable body")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body failed: %w", err)
	}
	out.Body = body
	return out, nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
