package http

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestResponseWriter_HijackForWebSocket(t *testing.T) {
	inner := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw := &responseWriter{ResponseWriter: inner, status: http.StatusOK}

	hj, ok := http.ResponseWriter(rw).(http.Hijacker)
	if !ok {
		t.Fatal("responseWriter does not implement http.Hijacker")
	}
	if _, _, err := hj.Hijack(); err != nil || !inner.hijacked {
		t.Fatalf("hijack not delegated: %v", err)
	}

	plain := &responseWriter{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	if _, _, err := plain.Hijack(); err == nil {
		t.Fatal("expected error when upstream cannot hijack")
	}
}

// captureLogs swaps the default logger for the duration of a test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogger_RecordsStatusAndBytes(t *testing.T) {
	buf := captureLogs(t)
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"schedule generation failed"}`))
	}))

	req := httptest.NewRequestWithContext(context.Background(), http.MethodPost, "/api/v1/schedules/generate", http.NoBody)
	h.ServeHTTP(httptest.NewRecorder(), req)

	line := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"status":502`, `"bytes":38`, `"path":"/api/v1/schedules/generate"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %s: %s", want, line)
		}
	}
}

func TestLogger_HealthAtDebug(t *testing.T) {
	buf := captureLogs(t)
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if !strings.Contains(buf.String(), `"level":"DEBUG"`) {
		t.Errorf("expected debug level for health probe: %s", buf.String())
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS("https://schedule.example.edu")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/schedules/generate", http.NoBody))

	if w.Code != http.StatusNoContent || called {
		t.Fatalf("preflight must short-circuit: code=%d called=%v", w.Code, called)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://schedule.example.edu" {
		t.Errorf("unexpected origin %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key") {
		t.Error("Idempotency-Key must be allowed")
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/departments", http.NoBody))

	if w.Header().Get("X-Frame-Options") != "DENY" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Errorf("missing security headers: %v", w.Header())
	}
}
