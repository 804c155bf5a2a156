package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront-client/internal/infrastructure/storage"
)

func signedToken(t *testing.T, userID string, expiresAt time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   "customer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret-test-secret-test-sec"))
	require.NoError(t, err)
	return token
}

// ============================================
// Claims Tests
// ============================================

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, "user-1", exp)

	claims, err := ParseClaims(token)

	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "customer", claims.Role)
}

func TestParseClaims_Garbage(t *testing.T) {
	_, err := ParseClaims("not-a-token")

	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	token := signedToken(t, "user-1", exp)

	got, err := TokenExpiry(token)

	require.NoError(t, err)
	assert.True(t, got.Equal(exp))
}

// ============================================
// Session Tests
// ============================================

func TestSession_SetTokensAndReload(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	s := NewSession(ctx, store)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, s.SetTokens(ctx, "access-1", "refresh-1", exp))
	require.NoError(t, s.SetUser(ctx, User{ID: "user-1", Email: "u@example.com", Role: "customer"}))

	// A new session over the same store resumes the state
	s2 := NewSession(ctx, store)
	assert.Equal(t, "access-1", s2.AccessToken())
	assert.Equal(t, "refresh-1", s2.RefreshToken())
	user, ok := s2.User()
	require.True(t, ok)
	assert.Equal(t, "user-1", user.ID)
	assert.True(t, s2.Authenticated())
}

func TestSession_CorruptStateStartsAnonymous(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, sessionKey, []byte("{corrupt")))

	s := NewSession(ctx, store)

	assert.False(t, s.Authenticated())
	assert.Empty(t, s.AccessToken())
}

func TestSession_TokenValid_Buffer(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	s := NewSession(ctx, store)
	s.now = func() time.Time { return now }

	tests := []struct {
		name      string
		expiresAt time.Time
		valid     bool
	}{
		{"expires in an hour", now.Add(time.Hour), true},
		{"expires just past the buffer", now.Add(6 * time.Minute), true},
		{"expires inside the buffer", now.Add(4 * time.Minute), false},
		{"already expired", now.Add(-time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SetTokens(ctx, "access", "refresh", tt.expiresAt))
			assert.Equal(t, tt.valid, s.TokenValid())
		})
	}
}

func TestSession_TokenValid_NoToken(t *testing.T) {
	s := NewSession(context.Background(), storage.NewMemoryStore())

	assert.False(t, s.TokenValid())
}

func TestSession_ExpiryDerivedFromTokenClaims(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	exp := time.Now().Add(45 * time.Minute)
	token := signedToken(t, "user-1", exp)

	s := NewSession(ctx, store)
	require.NoError(t, s.SetTokens(ctx, token, "refresh", time.Time{}))

	assert.True(t, s.TokenValid())
}

func TestSession_Clear(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	s := NewSession(ctx, store)
	require.NoError(t, s.SetTokens(ctx, "access", "refresh", time.Now().Add(time.Hour)))
	require.NoError(t, s.Clear(ctx))

	assert.False(t, s.Authenticated())
	_, err := store.Get(ctx, sessionKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSession_RefreshTokenPreservedWhenOmitted(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	s := NewSession(ctx, store)
	require.NoError(t, s.SetTokens(ctx, "access-1", "refresh-1", time.Now().Add(time.Hour)))
	// Server rotated only the access token
	require.NoError(t, s.SetTokens(ctx, "access-2", "", time.Now().Add(time.Hour)))

	assert.Equal(t, "access-2", s.AccessToken())
	assert.Equal(t, "refresh-1", s.RefreshToken())
}
