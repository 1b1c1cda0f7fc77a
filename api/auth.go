package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jrsteele09/solugarde-client/users"
)

const (
	pathLogin   = "/auth/login"
	pathRefresh = "/auth/refresh"
	pathMe      = "/auth/me"
	pathLogout  = "/auth/logout"
)

var ErrIncompleteAuthResponse = errors.New("auth response is incomplete")

// Login exchanges credentials for a token pair. It bypasses the pipeline: a 401 here means
// bad credentials, not an expired session. A response without a user is completed from /auth/me.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	req := Request{Method: http.MethodPost, Path: pathLogin, Body: LoginRequest{Email: email, Password: password}}
	if err := c.send(ctx, req, "", &resp); err != nil {
		return nil, err
	}
	if !resp.Complete() {
		return nil, fmt.Errorf("[Client.Login] %w", ErrIncompleteAuthResponse)
	}
	if resp.User == nil {
		user, err := c.Profile(ctx, resp.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("[Client.Login] profile: %w", err)
		}
		resp.User = user
	}
	return &resp, nil
}

// RefreshTokens exchanges a refresh token for a new pair. The refresh token is sent as the
// bearer credential and the call bypasses the pipeline so it can never recurse.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	var resp AuthResponse
	req := Request{Method: http.MethodPost, Path: pathRefresh, Body: struct{}{}}
	if err := c.send(ctx, req, refreshToken, &resp); err != nil {
		return nil, err
	}
	if !resp.Complete() {
		return nil, fmt.Errorf("[Client.RefreshTokens] %w", ErrIncompleteAuthResponse)
	}
	return &resp, nil
}

// Me fetches the authenticated user
func (c *Client) Me(ctx context.Context) (*users.User, error) {
	var user users.User
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: pathMe}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches the user owning accessToken outside the pipeline, so a rejection is reported
// as is instead of triggering a refresh.
func (c *Client) Profile(ctx context.Context, accessToken string) (*users.User, error) {
	var user users.User
	if err := c.send(ctx, Request{Method: http.MethodGet, Path: pathMe}, accessToken, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout revokes the session of accessToken server side. It bypasses the pipeline so that
// logging out never triggers a refresh. Callers treat failures as best effort.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.send(ctx, Request{Method: http.MethodPost, Path: pathLogout}, accessToken, nil)
}

// Health calls the unauthenticated API root
func (c *Client) Health(ctx context.Context) (string, error) {
	var status string
	if err := c.Do(ctx, Request{Method: http.MethodGet, Path: "/", Public: true}, &status); err != nil {
		return "", err
	}
	return status, nil
}
