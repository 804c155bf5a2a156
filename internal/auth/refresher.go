package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

// Refresher exchanges the refresh token for a new token pair. The
// in-flight call state lives on the instance, not in a package-level
// flag: N requests hitting 401 concurrently share exactly one refresh
// round trip and all observe its outcome.
type Refresher struct {
	session  *Session
	endpoint string
	client   *http.Client

	// onExpired runs after the session has been cleared because the
	// refresh token was missing or rejected (the login-redirect hook).
	onExpired func()

	mu       sync.Mutex
	inflight *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

// NewRefresher creates a Refresher posting to endpoint. The client must
// not route through the authenticated transport, or a rejected refresh
// would recurse. A nil client gets a plain one with a sane timeout.
func NewRefresher(session *Session, endpoint string, client *http.Client, onExpired func()) *Refresher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Refresher{
		session:   session,
		endpoint:  endpoint,
		client:    client,
		onExpired: onExpired,
	}
}

// Refresh performs a single-flight token refresh. Callers arriving while
// a refresh is already running wait for that outcome instead of issuing
// a duplicate request.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	if call := r.inflight; call != nil {
		r.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	r.inflight = call
	r.mu.Unlock()

	call.err = r.doRefresh(ctx)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()
	close(call.done)

	return call.err
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (r *Refresher) doRefresh(ctx context.Context) error {
	refreshToken := r.session.RefreshToken()
	if refreshToken == "" {
		r.expire(ctx)
		return fmt.Errorf("no refresh token: %w", ErrSessionExpired)
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return fmt.Errorf("marshal refresh request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build refresh request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Transient failure: keep the session, let the caller retry.
		return fmt.Errorf("refresh request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Auth] Refresh rejected with status %d, clearing session", resp.StatusCode)
		r.expire(ctx)
		return fmt.Errorf("refresh rejected (status %d): %w", resp.StatusCode, ErrSessionExpired)
	}

	var tokens refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return fmt.Errorf("decode refresh response failed: %w", err)
	}

	return r.session.SetTokens(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt)
}

func (r *Refresher) expire(ctx context.Context) {
	_ = r.session.Clear(ctx)
	if r.onExpired != nil {
		r.onExpired()
	}
}
