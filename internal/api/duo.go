package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prologuebox/prologue/internal/domain"
	"github.com/prologuebox/prologue/internal/identity"
	"github.com/prologuebox/prologue/internal/invite"
	"github.com/prologuebox/prologue/internal/session"
)

// DuoHandler handles session-state and invite endpoints.
type DuoHandler struct {
	*Handler
	aiEnabled bool
}

// NewDuoHandler creates a duo handler.
func NewDuoHandler(base *Handler, aiEnabled bool) *DuoHandler {
	return &DuoHandler{Handler: base, aiEnabled: aiEnabled}
}

// RegisterRoutes registers duo and state routes. Routes are absolute so
// every handler can register on the same shared router.
func (h *DuoHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/state", h.GetState)
	r.Get("/api/config", h.GetConfig)
	r.Post("/api/duo", h.CompleteDuo)
	r.Get("/api/invite", h.GetInvite)
}

// stateResponse wraps a session state with the invite link the share step
// displays, when one is due.
type stateResponse struct {
	*session.State
	InviteLink string `json:"invite_link,omitempty"`
}

// GetState bootstraps the frontend: restores the session state for this
// device, processing an invite token from the page query if one is
// present. The frontend strips the token from the visible URL afterwards;
// this endpoint never stores it, so a reload without the parameter simply
// falls back to persisted state.
func (h *DuoHandler) GetState(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	state, err := h.sessions.Bootstrap(r.Context(), userID, r.URL.Query())
	if err != nil {
		slog.Error("Failed to bootstrap session state", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load state")
		return
	}

	JSON(w, http.StatusOK, h.withInviteLink(r, state))
}

// GetConfig returns the server configuration for the frontend.
func (h *DuoHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.aiEnabled,
	})
}

// CompleteDuo finishes a participant-setup form for either side of the
// duo. A one-sided duo yields a share step with an invite link; a complete
// one becomes canonical and is persisted.
func (h *DuoHandler) CompleteDuo(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var duo domain.Duo
	if err := json.NewDecoder(r.Body).Decode(&duo); err != nil {
		Error(w, http.StatusBadRequest, "invalid duo payload")
		return
	}
	if duo.P1.Name == "" {
		Error(w, http.StatusBadRequest, "participant name is required")
		return
	}

	state, err := h.sessions.Complete(r.Context(), userID, &duo)
	if err != nil {
		slog.Error("Failed to complete duo", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to save duo")
		return
	}

	JSON(w, http.StatusOK, h.withInviteLink(r, state))
}

// GetInvite returns the invite link for the device's shareable duo.
func (h *DuoHandler) GetInvite(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	duo, err := h.sessions.ShareableDuo(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load shareable duo", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load duo")
		return
	}
	if duo == nil {
		Error(w, http.StatusNotFound, "no duo to share")
		return
	}

	JSON(w, http.StatusOK, map[string]string{
		"invite_link": h.inviteLink(r, duo),
	})
}

func (h *DuoHandler) inviteLink(r *http.Request, duo *domain.Duo) string {
	return h.baseURL(r) + "/?" + session.InviteParam + "=" + invite.Encode(duo)
}

func (h *DuoHandler) withInviteLink(r *http.Request, state *session.State) *stateResponse {
	resp := &stateResponse{State: state}
	if state.ShowShare && state.Pending != nil {
		resp.InviteLink = h.inviteLink(r, state.Pending)
	}
	return resp
}
