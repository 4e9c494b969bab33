// Package handlers provides HTTP handlers for the dashboard.
package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"kite_dashboard/internal/kite"
	"kite_dashboard/internal/logger"
)

// respondJSON writes v as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("Encoding response failed")
	}
}

// respondError writes a JSON error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// upstreamMessage extracts the broker-supplied message from an error,
// falling back to the error text.
func upstreamMessage(err error) string {
	var apiErr *kite.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// render executes a page template against the base layout.
func render(templates map[string]*template.Template, w http.ResponseWriter, name string, data any) {
	tmpl, ok := templates[name]
	if !ok {
		logger.Log.WithField("template", name).Error("Template not found")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		logger.Log.WithError(err).WithField("template", name).Error("Rendering template failed")
	}
}
