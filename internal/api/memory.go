package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prologuebox/prologue/internal/identity"
)

// MemoryHandler handles memory capture and gallery endpoints.
type MemoryHandler struct {
	*Handler
}

// NewMemoryHandler creates a memory handler.
func NewMemoryHandler(base *Handler) *MemoryHandler {
	return &MemoryHandler{Handler: base}
}

// RegisterRoutes registers memory routes.
func (h *MemoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/capture", h.Capture)
	r.Get("/api/memories", h.GetMemories)
}

// captureRequest carries the captured image reference (a data URI).
type captureRequest struct {
	ImageURL string `json:"imageUrl"`
}

// Capture turns the active mission into a memory and advances the duo's
// phase. Without an active mission and a canonical duo the request is a
// no-op and answers 204.
func (h *MemoryHandler) Capture(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid capture payload")
		return
	}

	memory, err := h.sessions.RecordCapture(r.Context(), userID, req.ImageURL)
	if err != nil {
		slog.Error("Failed to record capture", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to save memory")
		return
	}
	if memory == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	duo, err := h.sessions.Duo(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to reload duo after capture", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load duo")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"memory": memory,
		"duo":    duo,
	})
}

// GetMemories returns the device's memory sequence, most recent first.
func (h *MemoryHandler) GetMemories(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	memories, err := h.sessions.Memories(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load memories", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load memories")
		return
	}

	JSON(w, http.StatusOK, memories)
}
