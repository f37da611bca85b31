package util

import (
	"log/slog"
	"net/http"
	"time"
)

// LoggingTransport emits a structured debug log for each outgoing request.
// It includes request_id so client and server logs can be correlated.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger *slog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	attrs := []any{
		"method", req.Method,
		"path", req.URL.Path,
		"duration_ms", time.Since(start).Milliseconds(),
		"request_id", req.Header.Get(RequestIDHeader),
	}
	if err != nil {
		logger.Debug("http_request", append(attrs, "err", err)...)
		return nil, err
	}
	logger.Debug("http_request", append(attrs, "status", resp.StatusCode)...)
	return resp, nil
}
