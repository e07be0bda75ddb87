package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/pagereach/cps-client/internal/apierrors"
	"github.com/pagereach/cps-client/internal/model"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a bearer token and stores it. A 401 here
// means invalid credentials and is returned unchanged; it never clears an
// existing token.
func (c *Client) Login(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apierrors.NewValidation("email and password are required")
	}
	var out model.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if err := c.tokens.SetToken(out.AccessToken); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, email, password string) (*model.AuthResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apierrors.NewValidation("email and password are required")
	}
	var out model.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if err := c.tokens.SetToken(out.AccessToken); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me validates the stored token against the backend.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout discards the local session. Purely client-side; the backend keeps
// no session state beyond the token itself.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}
