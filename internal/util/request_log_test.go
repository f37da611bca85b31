package util

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLoggingTransportLogsStatusAndRequestID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	client := &http.Client{Transport: &LoggingTransport{Logger: NewLogger(&buf, "debug", "text")}}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/books", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	out := buf.String()
	for _, want := range []string{"msg=http_request", "path=/books", "status=418", "request_id=rid-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %q", out, want)
		}
	}
}
