package handlers

import (
	"html/template"
	"net/http"

	"kite_dashboard/internal/middleware"
)

// PageHandler renders the server-side pages.
type PageHandler struct {
	templates map[string]*template.Template
}

// NewPageHandler creates a new PageHandler.
func NewPageHandler(templates map[string]*template.Template) *PageHandler {
	return &PageHandler{templates: templates}
}

// Index renders the dashboard for authenticated sessions and the login
// page otherwise.
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSession(r)
	if sess.Authenticated() {
		render(h.templates, w, "dashboard.html", map[string]any{
			"Title":  "Portfolio",
			"UserID": sess.UserID,
		})
		return
	}

	render(h.templates, w, "login.html", map[string]any{
		"Title": "Login",
	})
}
