package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/middleware"
	"kite_dashboard/internal/session"
)

func TestLoginQR_ReturnsPNG(t *testing.T) {
	client := kite.NewClient("test_key", "secret_xyz")
	sessions := session.NewMemoryStore()
	mw := middleware.NewSessionMiddleware(sessions, cache.NewNoopStore(), "test-secret", 86400, false)
	h := NewAuthHandler(client, sessions, cache.NewNoopStore(), mw, false)

	rec := httptest.NewRecorder()
	h.LoginQR(rec, httptest.NewRequest("GET", "/login/qr", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	pngMagic := []byte{0x89, 'P', 'N', 'G'}
	if !bytes.HasPrefix(rec.Body.Bytes(), pngMagic) {
		t.Error("response body is not a PNG image")
	}
}

func TestCallback_DevelopmentMode_RendersDiagnosticPage(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	// Rebuild the auth handler in development mode against the same stack.
	server := httptest.NewServer(http.HandlerFunc(brokerSuccess))
	t.Cleanup(server.Close)
	client := kite.NewClient("test_key", "secret_xyz").WithBaseURL(server.URL)
	h := NewAuthHandler(client, env.sessions, cache.NewNoopStore(), env.mw, true)

	req := httptest.NewRequest("GET", "/kite-redirect?status=success&request_token=req123", nil)
	rec := httptest.NewRecorder()
	h.Callback(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Login Successful") {
		t.Errorf("body = %q, want diagnostic page", body)
	}
	if !strings.Contains(body, "AB1234") {
		t.Error("diagnostic page should show the user ID")
	}
}
