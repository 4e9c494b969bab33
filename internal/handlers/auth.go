package handlers

import (
	"context"
	"fmt"
	"net/http"

	qrcode "github.com/skip2/go-qrcode"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/logger"
	"kite_dashboard/internal/middleware"
	"kite_dashboard/internal/session"
)

// pendingUserID is the placeholder identity recorded against a request
// token before the exchange reveals the real user.
const pendingUserID = "pending"

// AuthHandler handles the login redirect, broker callback and logout.
type AuthHandler struct {
	client      *kite.Client
	sessions    session.Store
	cache       cache.Store
	cookies     *middleware.SessionMiddleware
	development bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	client *kite.Client,
	sessions session.Store,
	cacheStore cache.Store,
	cookies *middleware.SessionMiddleware,
	development bool,
) *AuthHandler {
	return &AuthHandler{
		client:      client,
		sessions:    sessions,
		cache:       cacheStore,
		cookies:     cookies,
		development: development,
	}
}

// Login redirects the browser to the broker's hosted login page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	loginURL := h.client.LoginURL()
	logger.Log.WithField("url", loginURL).Info("Redirecting to broker login")
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// LoginQR serves the hosted login URL as a PNG QR code, so the login can
// be completed on a phone.
func (h *AuthHandler) LoginQR(w http.ResponseWriter, r *http.Request) {
	png, err := qrcode.Encode(h.client.LoginURL(), qrcode.Medium, 256)
	if err != nil {
		logger.Log.WithError(err).Error("Generating login QR code failed")
		respondError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// Callback handles the redirect back from the broker's login page. It
// validates the callback, exchanges the request token for an access token
// and establishes the session.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	requestToken := r.URL.Query().Get("request_token")
	status := r.URL.Query().Get("status")

	if status != "success" || requestToken == "" {
		logger.Log.WithField("status", status).Warn("Invalid login callback")
		respondError(w, http.StatusBadRequest, "Login failed. Invalid status or missing request_token.")
		return
	}

	ctx := r.Context()

	// Audit trail: the user is unknown until the exchange succeeds
	if err := h.cache.SaveRequestToken(ctx, requestToken, pendingUserID); err != nil {
		logger.Log.WithError(err).Warn("Recording request token failed")
	}

	tokenSession, err := h.client.ExchangeToken(ctx, requestToken)
	if err != nil {
		logger.Log.WithError(err).Error("Token exchange failed")
		respondError(w, http.StatusInternalServerError, upstreamMessage(err))
		return
	}

	sess, err := h.sessions.Create(ctx, tokenSession.UserID, tokenSession.AccessToken, tokenSession.PublicToken)
	if err != nil {
		logger.Log.WithError(err).Error("Creating session failed")
		respondError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	h.mirrorLogin(ctx, requestToken, tokenSession, sess)
	h.cookies.SetSessionCookie(w, sess.ID)

	logger.Log.WithField("user_id", tokenSession.UserID).Info("Login successful")

	if h.development {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Login Successful!</h1>"+
			"<p>User ID: %s</p><p>User Name: %s</p><p>Email: %s</p><p>Broker: %s</p>"+
			"<p><a href=\"/\">Go to Dashboard</a></p>",
			tokenSession.UserID, tokenSession.UserName, tokenSession.Email, tokenSession.Broker)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// mirrorLogin writes the user, session and resolved audit rows to the
// cache. All failures are logged and swallowed.
func (h *AuthHandler) mirrorLogin(ctx context.Context, requestToken string, tokenSession *kite.TokenSession, sess *session.Session) {
	user := &cache.User{
		UserID:       tokenSession.UserID,
		UserName:     tokenSession.UserName,
		Email:        tokenSession.Email,
		Broker:       tokenSession.Broker,
		AccessToken:  tokenSession.AccessToken,
		PublicToken:  tokenSession.PublicToken,
		RefreshToken: tokenSession.RefreshToken,
	}
	if err := h.cache.SaveUser(ctx, user); err != nil {
		logger.Log.WithError(err).Warn("Mirroring user failed")
	}
	if err := h.cache.SaveRequestToken(ctx, requestToken, tokenSession.UserID); err != nil {
		logger.Log.WithError(err).Warn("Resolving request token audit record failed")
	}
	if err := h.cache.SaveSession(ctx, sess); err != nil {
		logger.Log.WithError(err).Warn("Mirroring session failed")
	}
}

// Logout invalidates the broker token (best effort), destroys the local
// session and clears the cookie. Local teardown always wins: a failed
// remote invalidation still logs the user out.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := middleware.GetSession(r)

	if sess != nil && sess.AccessToken != "" {
		if err := h.client.InvalidateToken(ctx, sess.AccessToken); err != nil {
			logger.Log.WithError(err).Warn("Remote token invalidation failed, continuing with local logout")
		}
	}

	if sess != nil {
		if err := h.cache.DeleteSession(ctx, sess.ID); err != nil {
			logger.Log.WithError(err).Warn("Deleting cached session failed")
		}
		if err := h.sessions.Delete(ctx, sess.ID); err != nil {
			logger.Log.WithError(err).Error("Destroying session failed")
			respondError(w, http.StatusInternalServerError, "Failed to logout")
			return
		}
	}

	h.cookies.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}
