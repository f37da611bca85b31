// Package api is the request pipeline for the library REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"libraryclient/internal/util"
)

const defaultTimeout = 10 * time.Second

// CredentialProvider supplies the bearer token for each request. An empty
// token sends the request unauthenticated.
type CredentialProvider interface {
	Token(ctx context.Context) string
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context) string

func (f CredentialFunc) Token(ctx context.Context) string { return f(ctx) }

// Config wires a Client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Credentials    CredentialProvider
	OnUnauthorized func(ctx context.Context)
	Logger         *slog.Logger
}

// Client calls the library API over HTTP.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	credentials    CredentialProvider
	onUnauthorized func(ctx context.Context)
	logger         *slog.Logger
}

// APIError represents a non-2xx API response.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// MessageOf returns the server-provided message when err is an APIError,
// otherwise fallback.
func MessageOf(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.TrimSpace(apiErr.Message) != "" {
		return apiErr.Message
	}
	return fallback
}

// NewClient constructs an API client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("api: parse base URL: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = util.Discard()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: &util.LoggingTransport{Logger: logger},
		}
	}
	return &Client{
		baseURL:        base,
		httpClient:     httpClient,
		credentials:    cfg.Credentials,
		onUnauthorized: cfg.OnUnauthorized,
		logger:         logger,
	}, nil
}

// BaseURL returns the API root, without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(util.RequestIDHeader, util.RequestIDFromContext(ctx))
	if c.credentials != nil {
		if token := c.credentials.Token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Error   string `json:"error"`
			Code    string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := strings.TrimSpace(errResp.Message)
		if msg == "" {
			msg = strings.TrimSpace(errResp.Error)
		}
		if msg == "" {
			msg = resp.Status
		}
		apiErr := &APIError{Status: resp.StatusCode, Message: msg, Code: strings.TrimSpace(errResp.Code)}
		if resp.StatusCode == http.StatusUnauthorized {
			c.logger.Warn("unauthorized response, clearing session", "method", method, "path", path)
			if c.onUnauthorized != nil {
				c.onUnauthorized(ctx)
			}
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
