package ring

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"deskbroker/internal/shared/logging"
)

func TestHandleDevLogTraceDisabledByDefault(t *testing.T) {
	server := NewServer(New(newFakeStore()), nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?log_id=log-abc", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when dev mode is off, got %d", w.Code)
	}
}

func TestHandleDevLogTraceRequiresLogID(t *testing.T) {
	server := NewServer(New(newFakeStore()), nil, true)

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without log_id, got %d", w.Code)
	}
}

func TestHandleDevLogTraceReturnsBundle(t *testing.T) {
	logDir := t.TempDir()
	t.Setenv(logging.DefaultLogDirEnv, logDir)
	if err := os.WriteFile(filepath.Join(logDir, "service.log"),
		[]byte("2026-02-08 01:11:57 [INFO] [SERVICE] [Main] [log_id=log-abc] lark.go:1 - dispatched\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	server := NewServer(New(newFakeStore()), nil, true)

	req := httptest.NewRequest(http.MethodGet, "/api/logs?log_id=log-abc", nil)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "dispatched") {
		t.Fatalf("expected bundle to contain matched line, got %s", w.Body.String())
	}
}
