package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("empty context returned request ID %q", got)
	}

	ctx = WithRequestID(ctx, "abc123")
	if got := GetRequestID(ctx); got != "abc123" {
		t.Errorf("GetRequestID = %q, want %q", got, "abc123")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	// Generated ID propagates to context and response header.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" {
		t.Error("no request ID in handler context")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("response header does not match context request ID")
	}

	// Incoming X-Request-ID is preserved.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "caller-id" {
		t.Errorf("incoming request ID not preserved: %q", seen)
	}
}

func TestLoggingMiddlewareCapturesStatus(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStoreEventCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	saved := defaultLogger
	defaultLogger = slog.New(slog.NewTextHandler(&buf, nil))
	defer func() { defaultLogger = saved }()

	ctx := WithRequestID(context.Background(), "req-7")
	StoreEvent(ctx, "document_stored", "user_data", "rows", 1)

	out := buf.String()
	for _, want := range []string{"store_event", "document_stored", "user_data", "req-7"} {
		if !strings.Contains(out, want) {
			t.Errorf("store event output missing %q: %s", want, out)
		}
	}
}

func TestLoggerFromContext(t *testing.T) {
	base := LoggerFromContext(context.Background())
	if base == nil {
		t.Fatal("nil logger")
	}
	withID := LoggerFromContext(WithRequestID(context.Background(), "x"))
	if withID == nil {
		t.Fatal("nil logger with request ID")
	}
}
