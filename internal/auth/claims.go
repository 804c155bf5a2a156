package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims issued by the storefront API.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// User is the locally cached snapshot of the authenticated user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

// IsAdmin reports whether the snapshot carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

// ParseClaims decodes a token's claims without verifying its signature.
// The client never holds the signing key; verification happens server-side
// and the claims are used here only to read identity and expiry.
func ParseClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenExpiry extracts the expiry timestamp from a token. Returns a zero
// time when the token carries no exp claim.
func TokenExpiry(tokenString string) (time.Time, error) {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
