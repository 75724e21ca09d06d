package log

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentRecurring, Output: &buf})

	logger.Info("Processing recurring templates", "due", 3)
	out := buf.String()
	if !strings.Contains(out, "component=recurring") || !strings.Contains(out, "due=3") {
		t.Fatalf("unexpected output: %q", out)
	}

	buf.Reset()
	logger.WithComponent(ComponentHTTP).Info("hello")
	if strings.Contains(buf.String(), "component=recurring") || !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("component not replaced: %q", buf.String())
	}
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatalf("expected fallback logger")
	}

	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	var seen *Logger
	h := Middleware(base)(ComponentMiddleware(ComponentGraphQL)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.InfoContext(r.Context(), "inside", FieldRequestID, "req_1")
		})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql", nil))

	if seen == nil || seen.Component() != ComponentGraphQL {
		t.Fatalf("handler did not receive component logger")
	}
	if out := buf.String(); !strings.Contains(out, "component=graphql") || !strings.Contains(out, "request_id=req_1") {
		t.Fatalf("unexpected output: %q", out)
	}
}
