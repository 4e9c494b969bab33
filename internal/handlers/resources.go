package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kite_dashboard/internal/cache"
	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/logger"
	"kite_dashboard/internal/middleware"
	"kite_dashboard/internal/portfolio"
	"kite_dashboard/internal/session"
)

// ResourceHandler proxies authenticated portfolio reads to the broker.
// Every handler follows the same contract: require a session, issue one
// broker call, pass the data through, and tear the session down when the
// broker reports the token invalid.
type ResourceHandler struct {
	client   *kite.Client
	sessions session.Store
	cache    cache.Store
	cookies  *middleware.SessionMiddleware
}

// NewResourceHandler creates a new ResourceHandler.
func NewResourceHandler(
	client *kite.Client,
	sessions session.Store,
	cacheStore cache.Store,
	cookies *middleware.SessionMiddleware,
) *ResourceHandler {
	return &ResourceHandler{
		client:   client,
		sessions: sessions,
		cache:    cacheStore,
		cookies:  cookies,
	}
}

// Profile returns the user profile.
func (h *ResourceHandler) Profile(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)

	profile, err := h.client.Profile(r.Context(), sess.AccessToken)
	if err != nil {
		h.upstreamError(w, r, sess, err)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// Holdings returns the portfolio holdings and refreshes the cache mirror.
func (h *ResourceHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)

	holdings, err := h.fetchHoldings(r.Context(), sess)
	if err != nil {
		h.upstreamError(w, r, sess, err)
		return
	}

	respondJSON(w, http.StatusOK, holdings)
}

// Margins returns margins for one segment, or both when none is named.
func (h *ResourceHandler) Margins(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)
	segment := chi.URLParam(r, "segment")

	var (
		data any
		err  error
	)
	if segment == "" {
		data, err = h.client.Margins(r.Context(), sess.AccessToken)
	} else {
		data, err = h.client.MarginsSegment(r.Context(), sess.AccessToken, segment)
	}
	if err != nil {
		h.upstreamError(w, r, sess, err)
		return
	}

	respondJSON(w, http.StatusOK, data)
}

// PortfolioSummaryResponse is the aggregate payload for the dashboard.
type PortfolioSummaryResponse struct {
	Summary     portfolio.Summary `json:"summary"`
	TopHoldings []kite.Holding    `json:"top_holdings"`
}

// PortfolioSummary returns portfolio aggregates computed from a fresh
// holdings snapshot.
func (h *ResourceHandler) PortfolioSummary(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)

	holdings, err := h.fetchHoldings(r.Context(), sess)
	if err != nil {
		h.upstreamError(w, r, sess, err)
		return
	}

	respondJSON(w, http.StatusOK, PortfolioSummaryResponse{
		Summary:     portfolio.Summarize(holdings),
		TopHoldings: portfolio.TopByValue(holdings, portfolio.TopHoldingsCount),
	})
}

// fetchHoldings gets holdings from the broker and replaces the cached
// snapshot. Cache failures are logged and swallowed.
func (h *ResourceHandler) fetchHoldings(ctx context.Context, sess *session.Session) ([]kite.Holding, error) {
	holdings, err := h.client.Holdings(ctx, sess.AccessToken)
	if err != nil {
		return nil, err
	}

	if err := h.cache.ReplaceHoldings(ctx, sess.UserID, holdings); err != nil {
		logger.Log.WithError(err).Warn("Refreshing holdings cache failed")
	}
	return holdings, nil
}

// upstreamError maps a broker failure onto the response. A structured
// token error destroys the session so the next request is anonymous;
// anything else surfaces as an opaque upstream error.
func (h *ResourceHandler) upstreamError(w http.ResponseWriter, r *http.Request, sess *session.Session, err error) {
	if kite.IsTokenError(err) {
		logger.Log.WithField("user_id", sess.UserID).Info("Access token rejected, destroying session")
		if cacheErr := h.cache.DeleteSession(r.Context(), sess.ID); cacheErr != nil {
			logger.Log.WithError(cacheErr).Warn("Deleting cached session failed")
		}
		if delErr := h.sessions.Delete(r.Context(), sess.ID); delErr != nil {
			logger.Log.WithError(delErr).Warn("Destroying session failed")
		}
		h.cookies.ClearSessionCookie(w)
		respondError(w, http.StatusUnauthorized, "Session expired. Please login again.")
		return
	}

	logger.Log.WithError(err).Error("Broker request failed")
	respondError(w, http.StatusInternalServerError, upstreamMessage(err))
}
