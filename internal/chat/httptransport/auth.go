package httptransport

import (
	"context"
	"net/http"

	"bookswap/pkg/models"
)

// Signup registers a new account and returns its first access token.
func (c *Client) Signup(ctx context.Context, req models.SignupRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, "signup", http.MethodPost, "/signup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	var resp models.AuthResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, "me", http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
