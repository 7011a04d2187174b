package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prologuebox/prologue/internal/domain"
	"github.com/prologuebox/prologue/internal/identity"
)

// The single user-visible generation failure message. Provider errors are
// never detailed to the frontend.
const generationFailedMessage = "Le flux de l'encre est interrompu... Réessayez."

// MissionHandler handles episode generation and narration endpoints.
type MissionHandler struct {
	*Handler
}

// NewMissionHandler creates a mission handler.
func NewMissionHandler(base *Handler) *MissionHandler {
	return &MissionHandler{Handler: base}
}

// RegisterRoutes registers mission routes.
func (h *MissionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/mission", h.Generate)
	r.Post("/api/mission/dismiss", h.Dismiss)
	r.Post("/api/mission/speech", h.Speech)
}

// Generate produces the duo's next episode from the mission form.
func (h *MissionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	if h.generator == nil {
		Error(w, http.StatusServiceUnavailable, "content generation is not configured")
		return
	}

	var form domain.MissionForm
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		Error(w, http.StatusBadRequest, "invalid mission form")
		return
	}
	if form.City == "" {
		Error(w, http.StatusBadRequest, "city is required")
		return
	}

	duo, err := h.sessions.Duo(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load duo for generation", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load duo")
		return
	}
	if duo == nil || !duo.IsComplete() {
		Error(w, http.StatusConflict, "no complete duo")
		return
	}

	form.Phase = duo.CurrentPhase
	result, err := h.generator.Generate(r.Context(), domain.MissionRequest{
		MissionForm: form,
		Duo:         *duo,
	})
	if err != nil {
		// No partial mission state is committed on failure.
		slog.Error("Episode generation failed", "error", err, "user_id", userID, "duo_id", duo.ID)
		Error(w, http.StatusBadGateway, generationFailedMessage)
		return
	}

	h.sessions.SetMission(userID, result)
	slog.Info("Episode generated", "user_id", userID, "duo_id", duo.ID, "phase", duo.CurrentPhase)
	JSON(w, http.StatusOK, result)
}

// Dismiss drops the active mission without capturing a memory.
func (h *MissionHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	h.sessions.ClearMission(userID)
	JSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// speechRequest carries the text to narrate. When empty, the active
// mission's description is read.
type speechRequest struct {
	Text string `json:"text"`
}

// Speech synthesizes narration audio for mission text. The operation is
// fire-and-forget from the frontend's perspective: failures degrade to an
// empty response rather than an error.
func (h *MissionHandler) Speech(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	if h.generator == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid speech payload")
		return
	}
	text := req.Text
	if text == "" {
		if active := h.sessions.ActiveMission(userID); active != nil {
			text = active.Description
		}
	}
	if text == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	audio, err := h.generator.Speak(r.Context(), text)
	if err != nil {
		slog.Warn("Narration synthesis failed", "error", err, "user_id", userID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Raw 24 kHz mono PCM; the frontend feeds it straight into an audio buffer.
	w.Header().Set("Content-Type", "audio/L16;rate=24000")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		slog.Debug("Failed to write audio response", "error", err, "user_id", userID)
	}
}
