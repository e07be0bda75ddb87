package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagereach/cps-client/internal/apierrors"
)

const (
	// DefaultTimeout bounds ordinary API calls.
	DefaultTimeout = 30 * time.Second
	// UploadTimeout bounds multipart uploads and report downloads.
	UploadTimeout = 60 * time.Second
)

// Config assembles a Client. Everything side-effecting (token storage,
// session-expiry handling) is injected so tests can substitute fakes.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Tokens  TokenStore
	// OnSessionExpired fires after a 401 on a non-auth endpoint, once the
	// token has been cleared. The browser front end does a full page
	// redirect here; the CLI just tells the user to log in again.
	OnSessionExpired func()
	Logger           *zap.Logger
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// Client is the authenticated HTTP client for the Contact Page Submitter
// backend. It attaches the bearer token to every request and applies one
// centralized policy for 401 responses.
type Client struct {
	baseURL          string
	http             *http.Client
	timeout          time.Duration
	tokens           TokenStore
	onSessionExpired func()
	log              *zap.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if cfg.Tokens == nil {
		cfg.Tokens = NewMemoryTokenStore()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		http:             httpClient,
		timeout:          cfg.Timeout,
		tokens:           cfg.Tokens,
		onSessionExpired: cfg.OnSessionExpired,
		log:              cfg.Logger,
	}, nil
}

// Tokens exposes the token store so callers (login, logout) can update it.
func (c *Client) Tokens() TokenStore {
	return c.tokens
}

// authPaths are the endpoints whose 401s mean "bad credentials", not
// "expired session". They must propagate unchanged so the login form can
// show invalid-credential messaging.
var authPaths = map[string]bool{
	"/auth/login":    true,
	"/auth/register": true,
	"/auth/me":       true,
}

func isAuthPath(path string) bool {
	return authPaths[path]
}

// do issues one request and applies the shared token/401/error policy. The
// caller owns the returned response body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	tok, err := c.tokens.Token()
	if err != nil {
		cancel()
		return nil, nil, err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		// No response reached us: unreachable host, refused connection, or
		// a timeout. Callers must be able to tell this apart from a server
		// rejection.
		return nil, nil, &apierrors.NetworkError{URL: c.baseURL + path, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && !isAuthPath(path) {
		resp.Body.Close()
		cancel()
		c.log.Warn("session expired, clearing token", zap.String("path", path))
		if err := c.tokens.Clear(); err != nil {
			c.log.Warn("failed to clear token", zap.Error(err))
		}
		if c.onSessionExpired != nil {
			c.onSessionExpired()
		}
		return nil, nil, apierrors.NewSessionExpired(path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, nil, apierrors.NewHTTP(resp.StatusCode, path, msg)
	}

	return resp, cancel, nil
}

// doJSON sends an optional JSON body and decodes a JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	resp, cancel, err := c.do(ctx, method, path, body, contentType, c.timeout)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

// readErrorMessage pulls a human-readable message out of an error response
// body. The backend answers with {"error": "..."} envelopes, but plain-text
// bodies show up too.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
