package api

import (
	"context"
	"net/http"

	"diarysync/auth"
	"diarysync/model"
)

// AuthAPI covers /auth and /users.
type AuthAPI struct{ c *Client }

// Register creates an account and returns its first token pair.
func (a *AuthAPI) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	var out AuthResponse
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/register", body: req, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token pair.
func (a *AuthAPI) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var out AuthResponse
	body := LoginRequest{Email: email, Password: password}
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: body, result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair. It implements
// auth.Refresher and must be called on a client without the auth gateway.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (auth.Tokens, error) {
	var out AuthResponse
	body := refreshRequest{RefreshToken: refreshToken}
	if err := a.c.do(ctx, call{method: http.MethodPost, path: "/auth/refresh", body: body, result: &out}); err != nil {
		return auth.Tokens{}, err
	}
	return out.Tokens(), nil
}

// Logout invalidates the session server-side.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return a.c.do(ctx, call{method: http.MethodPost, path: "/auth/logout"})
}

// Me returns the signed-in user's profile.
func (a *AuthAPI) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/auth/me", result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Quota returns the user's tier limits.
func (a *AuthAPI) Quota(ctx context.Context) (*model.Quota, error) {
	var out model.Quota
	if err := a.c.do(ctx, call{method: http.MethodGet, path: "/users/quota", result: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}

var _ auth.Refresher = (*AuthAPI)(nil)
