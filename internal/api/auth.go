package api

import (
	"context"
	"time"

	"github.com/example/storefront-client/internal/auth"
)

// Credentials is the login request body.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register request body.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// TokenGrant is the token payload returned by login, register and
// refresh.
type TokenGrant struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    time.Time  `json:"expires_at"`
	User         *auth.User `json:"user,omitempty"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) (*TokenGrant, error) {
	var grant TokenGrant
	if err := c.post(ctx, "/auth/login", creds, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Register creates an account and returns an initial token grant.
func (c *Client) Register(ctx context.Context, reg Registration) (*TokenGrant, error) {
	var grant TokenGrant
	if err := c.post(ctx, "/auth/register", reg, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// Logout invalidates the server-side session. Local state is the
// Session's to clear.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "/auth/logout", struct{}{}, nil)
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*auth.User, error) {
	var user auth.User
	if err := c.get(ctx, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ForgotPassword requests a password-reset email.
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.post(ctx, "/auth/forgot-password", body, nil)
}

// ResetPassword completes a password reset with the emailed token.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	body := map[string]string{"token": token, "password": newPassword}
	return c.post(ctx, "/auth/reset-password", body, nil)
}
