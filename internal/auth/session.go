package auth

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/example/storefront-client/internal/infrastructure/storage"
)

const sessionKey = "auth_session"

// expiryBuffer is subtracted from the token lifetime so a request never
// leaves with a token about to expire mid-flight.
const expiryBuffer = 5 * time.Minute

// ErrSessionExpired is returned when the session cannot be refreshed and
// has been cleared; the caller must re-authenticate.
var ErrSessionExpired = errors.New("auth: session expired")

type sessionState struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	User         *User     `json:"user,omitempty"`
}

// Session owns the locally persisted authentication state: access and
// refresh tokens, the access token expiry and a snapshot of the user.
type Session struct {
	mu    sync.RWMutex
	store storage.Store
	state sessionState

	// now is swappable in tests
	now func() time.Time
}

// NewSession loads any persisted session state from the store. A missing
// or corrupt record yields an empty (anonymous) session rather than an
// error.
func NewSession(ctx context.Context, store storage.Store) *Session {
	s := &Session{store: store, now: time.Now}

	var state sessionState
	err := storage.GetJSON(ctx, store, sessionKey, &state)
	switch {
	case err == nil:
		s.state = state
	case errors.Is(err, storage.ErrNotFound):
	default:
		log.Printf("[Auth] Failed to load session, starting anonymous: %v", err)
	}
	return s
}

// SetTokens stores a new token pair. When the server response carries no
// explicit expiry, the expiry is read from the access token's own claims.
func (s *Session) SetTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	if expiresAt.IsZero() {
		if exp, err := TokenExpiry(accessToken); err == nil {
			expiresAt = exp
		}
	}

	s.mu.Lock()
	s.state.AccessToken = accessToken
	if refreshToken != "" {
		s.state.RefreshToken = refreshToken
	}
	s.state.ExpiresAt = expiresAt
	s.mu.Unlock()

	return s.persist(ctx)
}

// SetUser stores the user snapshot alongside the tokens.
func (s *Session) SetUser(ctx context.Context, user User) error {
	s.mu.Lock()
	u := user
	s.state.User = &u
	s.mu.Unlock()

	return s.persist(ctx)
}

// AccessToken returns the current access token, empty when anonymous.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken
}

// RefreshToken returns the current refresh token, empty when anonymous.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RefreshToken
}

// User returns the cached user snapshot.
func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.User == nil {
		return User{}, false
	}
	return *s.state.User, true
}

// Authenticated reports whether any token state is held, valid or not.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.AccessToken != "" || s.state.RefreshToken != ""
}

// TokenValid reports whether the access token is present and not within
// the expiry buffer. An expired-but-present token is not attached to
// requests; the 401 path refreshes it instead.
func (s *Session) TokenValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state.AccessToken == "" {
		return false
	}
	if s.state.ExpiresAt.IsZero() {
		return true
	}
	return s.now().Add(expiryBuffer).Before(s.state.ExpiresAt)
}

// Clear erases all session state, locally and from the store.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.state = sessionState{}
	s.mu.Unlock()

	if err := s.store.Delete(ctx, sessionKey); err != nil {
		log.Printf("[Auth] Failed to erase persisted session: %v", err)
		return err
	}
	return nil
}

func (s *Session) persist(ctx context.Context) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if err := storage.SetJSON(ctx, s.store, sessionKey, state); err != nil {
		log.Printf("[Auth] Failed to persist session: %v", err)
		return err
	}
	return nil
}
