// Package api provides HTTP handlers for the Prologue API.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/prologuebox/prologue/internal/mission"
	"github.com/prologuebox/prologue/internal/session"
	"github.com/prologuebox/prologue/internal/store"
)

// Handler provides common handler dependencies.
type Handler struct {
	repo        store.Repository
	sessions    *session.Service
	generator   mission.Generator
	frontendURL string
}

// NewHandler creates a new Handler with common dependencies. The generator
// may be nil when no content service API key is configured.
func NewHandler(repo store.Repository, sessions *session.Service, generator mission.Generator, frontendURL string) *Handler {
	return &Handler{
		repo:        repo,
		sessions:    sessions,
		generator:   generator,
		frontendURL: frontendURL,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// baseURL returns the origin invite links should point at: the configured
// frontend URL when set, otherwise the origin the request came in on.
func (h *Handler) baseURL(r *http.Request) string {
	if h.frontendURL != "" {
		return strings.TrimRight(h.frontendURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
