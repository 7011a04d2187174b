// Package session holds the canonical duo state for each device and
// mediates all reads and writes to durable storage.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/prologuebox/prologue/internal/domain"
	"github.com/prologuebox/prologue/internal/invite"
	"github.com/prologuebox/prologue/internal/store"
)

// Invite token query keys. The short key is preferred; the long one is
// kept so links shared before the rename keep working.
const (
	InviteParam       = "a"
	LegacyInviteParam = "alliance"
)

// Notifier pushes state-change events to a device's open tabs.
type Notifier interface {
	Broadcast(userID string, event interface{})
}

// Event is a state-change notification sent through the Notifier.
type Event struct {
	Type   string         `json:"type"`
	Duo    *domain.Duo    `json:"duo,omitempty"`
	Memory *domain.Memory `json:"memory,omitempty"`
}

// Event types broadcast to a device's tabs.
const (
	EventDuoCompleted  = "duo_completed"
	EventPhaseAdvanced = "phase_advanced"
)

// State is the snapshot returned to the frontend on bootstrap and after
// mutations.
type State struct {
	Duo       *domain.Duo     `json:"duo,omitempty"`
	Pending   *domain.Duo     `json:"pending,omitempty"`
	Memories  []domain.Memory `json:"memories"`
	ShowShare bool            `json:"show_share"`
}

// Service owns the per-device session state. The canonical duo and the
// memory sequence live in durable storage; pending (one-sided) duos and
// the active mission only live in memory, matching their lifecycle: both
// are discarded on restart.
type Service struct {
	repo     store.Repository
	notifier Notifier

	mu       sync.Mutex
	pending  map[string]*domain.Duo
	missions map[string]*domain.Mission
	now      func() time.Time
}

// NewService creates a session service backed by repo.
func NewService(repo store.Repository) *Service {
	return &Service{
		repo:     repo,
		pending:  make(map[string]*domain.Duo),
		missions: make(map[string]*domain.Mission),
		now:      time.Now,
	}
}

// SetNotifier wires the presence hub. Optional; without it state changes
// are simply not pushed.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

// Bootstrap restores session state for a device at page load. If the page
// query carries an invite token it takes precedence over stored state:
// a pending invite puts the device in the joining flow without persisting
// anything, a complete one becomes the canonical duo immediately. A token
// that fails to decode degrades to "no invite data". Stripping the token
// from the visible URL afterwards is the frontend's job; nothing here
// persists the token itself.
func (s *Service) Bootstrap(ctx context.Context, userID string, query url.Values) (*State, error) {
	state := &State{}

	token := query.Get(InviteParam)
	if token == "" {
		token = query.Get(LegacyInviteParam)
	}

	if token != "" {
		decoded, kind := invite.Decode(token)
		switch {
		case kind == invite.KindInvalid:
			slog.Info("Invite token could not be decoded, ignoring", "user_id", userID)
		case !decoded.IsComplete():
			s.setPending(userID, decoded)
			state.Pending = decoded
		default:
			if err := s.repo.SaveDuo(ctx, userID, decoded); err != nil {
				return nil, fmt.Errorf("persist invited duo: %w", err)
			}
			s.clearPending(userID)
			state.Duo = decoded
		}
	}

	if state.Duo == nil && state.Pending == nil {
		duo, err := s.repo.GetDuo(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load duo: %w", err)
		}
		state.Duo = duo
		state.Pending = s.pendingFor(userID)
	}

	// Memories are restored independently of the duo slot.
	memories, err := s.repo.GetMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	state.Memories = memories

	return state, nil
}

// Complete finishes a participant-setup form, for either side of the duo.
// A still-pending duo (empty partner name) is held in memory only and the
// share step is signalled; a complete duo becomes canonical, clears the
// pending state and is persisted wholesale.
func (s *Service) Complete(ctx context.Context, userID string, duo *domain.Duo) (*State, error) {
	if duo.ID == "" {
		duo.ID = domain.NewDuoID()
	}
	if !duo.CurrentPhase.Valid() {
		duo.CurrentPhase = domain.PhaseSketch
	}

	memories, err := s.repo.GetMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}

	if !duo.IsComplete() {
		s.setPending(userID, duo)
		return &State{Pending: duo, Memories: memories, ShowShare: true}, nil
	}

	if err := s.repo.SaveDuo(ctx, userID, duo); err != nil {
		return nil, fmt.Errorf("persist duo: %w", err)
	}
	s.clearPending(userID)

	s.broadcast(userID, Event{Type: EventDuoCompleted, Duo: duo})
	slog.Info("Duo completed", "user_id", userID, "duo_id", duo.ID, "duo_name", duo.DuoName)

	return &State{Duo: duo, Memories: memories}, nil
}

// SetMission records the active mission for a device after a successful
// generation. Capturing a memory requires one.
func (s *Service) SetMission(userID string, mission *domain.Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[userID] = mission
}

// ActiveMission returns the device's active mission, or nil.
func (s *Service) ActiveMission(userID string) *domain.Mission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missions[userID]
}

// ClearMission dismisses the active mission without capturing it.
func (s *Service) ClearMission(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.missions, userID)
}

// RecordCapture turns the active mission into a memory. It is a no-op
// (nil, nil) when the device has no active mission or no canonical duo.
// On success the duo's phase advances one step (clamped at the final
// phase), the duo is persisted, and the new memory is prepended to the
// durably stored sequence.
func (s *Service) RecordCapture(ctx context.Context, userID, imageURL string) (*domain.Memory, error) {
	mission := s.ActiveMission(userID)
	if mission == nil {
		return nil, nil
	}

	duo, err := s.repo.GetDuo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load duo: %w", err)
	}
	if duo == nil {
		return nil, nil
	}

	memory := domain.NewMemory(mission.EpisodeTitle, imageURL, duo.CurrentPhase, s.now())

	// The memory is written before the phase advance so a failure partway
	// through never leaves an advanced phase with no memory behind it.
	memories, err := s.repo.GetMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	memories = append([]domain.Memory{memory}, memories...)
	if err := s.repo.SaveMemories(ctx, userID, memories); err != nil {
		return nil, fmt.Errorf("persist memories: %w", err)
	}

	duo.CurrentPhase = duo.CurrentPhase.Advance()
	if err := s.repo.SaveDuo(ctx, userID, duo); err != nil {
		return nil, fmt.Errorf("persist advanced duo: %w", err)
	}

	s.ClearMission(userID)

	s.broadcast(userID, Event{Type: EventPhaseAdvanced, Duo: duo, Memory: &memory})
	slog.Info("Memory captured", "user_id", userID, "memory_id", memory.ID, "phase", duo.CurrentPhase)

	return &memory, nil
}

// Duo returns the canonical duo for a device, or nil.
func (s *Service) Duo(ctx context.Context, userID string) (*domain.Duo, error) {
	return s.repo.GetDuo(ctx, userID)
}

// Memories returns the device's memory sequence, most recent first.
func (s *Service) Memories(ctx context.Context, userID string) ([]domain.Memory, error) {
	return s.repo.GetMemories(ctx, userID)
}

// ShareableDuo returns the duo an invite link should encode for a device:
// the pending one if a share step is in progress, otherwise the canonical
// duo. Returns nil when there is nothing to share.
func (s *Service) ShareableDuo(ctx context.Context, userID string) (*domain.Duo, error) {
	if pending := s.pendingFor(userID); pending != nil {
		return pending, nil
	}
	return s.repo.GetDuo(ctx, userID)
}

func (s *Service) setPending(userID string, duo *domain.Duo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = duo
}

func (s *Service) clearPending(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, userID)
}

func (s *Service) pendingFor(userID string) *domain.Duo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[userID]
}

func (s *Service) broadcast(userID string, event Event) {
	if s.notifier != nil {
		s.notifier.Broadcast(userID, event)
	}
}
