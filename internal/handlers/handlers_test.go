package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/logger"
	"kite_dashboard/internal/middleware"
	"kite_dashboard/internal/session"
)

func init() {
	logger.Silence()
}

// testEnv wires the handlers against a fake broker the way the server does.
type testEnv struct {
	router      *chi.Mux
	sessions    *session.MemoryStore
	mw          *middleware.SessionMiddleware
	brokerCalls *atomic.Int64
}

func setupTestEnv(t *testing.T, broker http.HandlerFunc) *testEnv {
	t.Helper()

	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		broker(w, r)
	}))
	t.Cleanup(server.Close)

	client := kite.NewClient("test_key", "secret_xyz").WithBaseURL(server.URL)
	sessions := session.NewMemoryStore()
	cacheStore := cache.NewNoopStore()
	mw := middleware.NewSessionMiddleware(sessions, cacheStore, "test-secret", 86400, false)

	authHandler := NewAuthHandler(client, sessions, cacheStore, mw, false)
	resourceHandler := NewResourceHandler(client, sessions, cacheStore, mw)

	router := chi.NewRouter()
	router.Use(mw.LoadSession)
	router.Get("/login", authHandler.Login)
	router.Get("/kite-redirect", authHandler.Callback)
	router.Post("/logout", authHandler.Logout)
	router.Group(func(r chi.Router) {
		r.Use(mw.RequireSession)
		r.Get("/profile", resourceHandler.Profile)
		r.Get("/holdings", resourceHandler.Holdings)
		r.Get("/margins", resourceHandler.Margins)
		r.Get("/margins/{segment}", resourceHandler.Margins)
		r.Get("/portfolio/summary", resourceHandler.PortfolioSummary)
	})

	return &testEnv{
		router:      router,
		sessions:    sessions,
		mw:          mw,
		brokerCalls: &calls,
	}
}

// brokerSuccess serves a successful token exchange plus the read endpoints.
func brokerSuccess(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/session/token":
		fmt.Fprint(w, `{"status":"success","data":{"user_id":"AB1234","user_name":"Test User","email":"user@example.com","broker":"ZERODHA","access_token":"tok_access","public_token":"tok_public"}}`)
	case r.Method == http.MethodDelete && r.URL.Path == "/session/token":
		fmt.Fprint(w, `{"status":"success","data":true}`)
	case r.URL.Path == "/user/profile":
		fmt.Fprint(w, `{"status":"success","data":{"user_id":"AB1234","user_name":"Test User"}}`)
	case r.URL.Path == "/portfolio/holdings":
		fmt.Fprint(w, `{"status":"success","data":[
			{"tradingsymbol":"INFY","quantity":10,"average_price":100,"last_price":110},
			{"tradingsymbol":"TCS","quantity":10,"average_price":100,"last_price":95}
		]}`)
	case r.URL.Path == "/user/margins":
		fmt.Fprint(w, `{"status":"success","data":{"equity":{"enabled":true,"net":5000}}}`)
	case r.URL.Path == "/user/margins/commodity":
		fmt.Fprint(w, `{"status":"success","data":{"enabled":false,"net":0}}`)
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"status":"error","message":"Route not found","error_type":"GeneralException"}`)
	}
}

// login drives the callback flow and returns the session cookie.
func login(t *testing.T, env *testEnv) *http.Cookie {
	t.Helper()

	req := httptest.NewRequest("GET", "/kite-redirect?status=success&request_token=req123", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want %d (body %s)", rec.Code, http.StatusFound, rec.Body.String())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("callback did not set a session cookie")
	return nil
}

func TestLogin_RedirectsToBrokerLoginPage(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/login", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	location := rec.Header().Get("Location")
	if !strings.Contains(location, "api_key=test_key") {
		t.Errorf("Location = %q, should carry the api key", location)
	}
	if !strings.Contains(location, "v=3") {
		t.Errorf("Location = %q, should carry the protocol version", location)
	}
}

func TestCallback_Success_SetsCookieAndRedirects(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	cookie := login(t, env)
	if !strings.Contains(cookie.Value, ".") {
		t.Errorf("cookie value %q should be signed", cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
}

func TestCallback_MissingRequestToken_Returns400(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	req := httptest.NewRequest("GET", "/kite-redirect?status=success", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if env.brokerCalls.Load() != 0 {
		t.Errorf("broker calls = %d, want 0 for invalid callback", env.brokerCalls.Load())
	}
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value != "" {
			t.Error("invalid callback must not set a session cookie")
		}
	}
}

func TestCallback_ErrorStatus_Returns400(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	req := httptest.NewRequest("GET", "/kite-redirect?status=error&request_token=req123", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCallback_ExchangeFails_Returns500WithBrokerMessage(t *testing.T) {
	env := setupTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"status":"error","message":"Invalid checksum","error_type":"InputException"}`)
	})

	req := httptest.NewRequest("GET", "/kite-redirect?status=success&request_token=req123", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), "Invalid checksum") {
		t.Errorf("body = %q, should surface the broker message", rec.Body.String())
	}
}

func TestProfile_NoSession_Returns401WithoutBrokerCall(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("GET", "/profile", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if env.brokerCalls.Load() != 0 {
		t.Errorf("broker calls = %d, want 0 without a session", env.brokerCalls.Load())
	}
}

func TestProfile_Authenticated_PassesThroughData(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var profile kite.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if profile.UserID != "AB1234" {
		t.Errorf("UserID = %q, want %q", profile.UserID, "AB1234")
	}
}

func TestHoldings_Authenticated_ReturnsList(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("GET", "/holdings", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var holdings []kite.Holding
	if err := json.Unmarshal(rec.Body.Bytes(), &holdings); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(holdings) != 2 {
		t.Errorf("len(holdings) = %d, want 2", len(holdings))
	}
}

func TestMargins_NoSegment_ReturnsBoth(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("GET", "/margins", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var margins kite.Margins
	if err := json.Unmarshal(rec.Body.Bytes(), &margins); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if margins.Equity == nil || !margins.Equity.Enabled {
		t.Error("equity segment missing from combined margins")
	}
}

func TestMargins_WithSegment_RequestsSegment(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("GET", "/margins/commodity", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var seg kite.MarginSegment
	if err := json.Unmarshal(rec.Body.Bytes(), &seg); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if seg.Enabled {
		t.Error("commodity segment should be disabled in fixture")
	}
}

func TestPortfolioSummary_ComputesAggregates(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("GET", "/portfolio/summary", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp PortfolioSummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Summary.InvestedValue != 2000 {
		t.Errorf("InvestedValue = %v, want 2000", resp.Summary.InvestedValue)
	}
	if resp.Summary.CurrentValue != 2050 {
		t.Errorf("CurrentValue = %v, want 2050", resp.Summary.CurrentValue)
	}
	if resp.Summary.PnL != 50 {
		t.Errorf("PnL = %v, want 50", resp.Summary.PnL)
	}
	if resp.Summary.PnLPercentage != 2.5 {
		t.Errorf("PnLPercentage = %v, want 2.5", resp.Summary.PnLPercentage)
	}
	if len(resp.TopHoldings) != 2 {
		t.Fatalf("len(TopHoldings) = %d, want 2", len(resp.TopHoldings))
	}
	if resp.TopHoldings[0].Tradingsymbol != "INFY" {
		t.Errorf("top holding = %s, want INFY", resp.TopHoldings[0].Tradingsymbol)
	}
}

func TestTokenError_DestroysSession_NextRequest401(t *testing.T) {
	var tokenValid atomic.Bool
	tokenValid.Store(true)

	env := setupTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/session/token" {
			brokerSuccess(w, r)
			return
		}
		if !tokenValid.Load() {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"status":"error","message":"Token is invalid or has expired.","error_type":"TokenException"}`)
			return
		}
		brokerSuccess(w, r)
	})

	cookie := login(t, env)

	// Broker starts rejecting the token.
	tokenValid.Store(false)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), "Session expired") {
		t.Errorf("body = %q, want session expired message", rec.Body.String())
	}

	// The session is gone: the same cookie is now anonymous.
	before := env.brokerCalls.Load()
	req2 := httptest.NewRequest("GET", "/profile", nil)
	req2.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d after session teardown", rec2.Code, http.StatusUnauthorized)
	}
	if env.brokerCalls.Load() != before {
		t.Error("destroyed session should not reach the broker")
	}
}

func TestUpstreamError_NonTokenFailure_Returns500KeepsSession(t *testing.T) {
	var failReads atomic.Bool

	env := setupTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if failReads.Load() && r.URL.Path == "/user/profile" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"status":"error","message":"Gateway timed out","error_type":"GeneralException"}`)
			return
		}
		brokerSuccess(w, r)
	})

	cookie := login(t, env)
	failReads.Store(true)

	req := httptest.NewRequest("GET", "/profile", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(rec.Body.String(), "Gateway timed out") {
		t.Errorf("body = %q, should surface the broker message", rec.Body.String())
	}

	// A transient failure must not log the user out.
	failReads.Store(false)
	req2 := httptest.NewRequest("GET", "/profile", nil)
	req2.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req2)

	if rec2.Code != http.StatusOK {
		t.Errorf("status = %d, want %d after transient failure", rec2.Code, http.StatusOK)
	}
}

func TestLogout_Authenticated_DestroysSession(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)
	cookie := login(t, env)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "Logged out successfully") {
		t.Errorf("body = %q, want logout confirmation", rec.Body.String())
	}

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout should clear the session cookie")
	}

	// Session gone: protected routes reject the old cookie.
	req2 := httptest.NewRequest("GET", "/profile", nil)
	req2.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	env.router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d after logout", rec2.Code, http.StatusUnauthorized)
	}
}

func TestLogout_RemoteInvalidationFails_StillLogsOut(t *testing.T) {
	env := setupTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && r.URL.Path == "/session/token" {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"status":"error","message":"Broker unavailable","error_type":"GeneralException"}`)
			return
		}
		brokerSuccess(w, r)
	})

	cookie := login(t, env)

	req := httptest.NewRequest("POST", "/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d even when remote invalidation fails", rec.Code, http.StatusOK)
	}
}

func TestLogout_NoSession_StillSucceeds(t *testing.T) {
	env := setupTestEnv(t, brokerSuccess)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest("POST", "/logout", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d for anonymous logout", rec.Code, http.StatusOK)
	}
}
