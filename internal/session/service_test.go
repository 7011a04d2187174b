package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/prologuebox/prologue/internal/domain"
	"github.com/prologuebox/prologue/internal/invite"
)

// fakeRepo is an in-memory Repository for service tests.
type fakeRepo struct {
	users           map[string]*domain.User
	duos            map[string]*domain.Duo
	memories        map[string][]domain.Memory
	saves           int
	saveMemoriesErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		duos:     make(map[string]*domain.Duo),
		memories: make(map[string][]domain.Memory),
	}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	return f.users[userID], nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.users[user.UserID] = user
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, userID string, lastSeen time.Time) error {
	if u, ok := f.users[userID]; ok {
		u.LastSeenAt = lastSeen
	}
	return nil
}

func (f *fakeRepo) GetDuo(_ context.Context, userID string) (*domain.Duo, error) {
	if duo, ok := f.duos[userID]; ok {
		copied := *duo
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeRepo) SaveDuo(_ context.Context, userID string, duo *domain.Duo) error {
	copied := *duo
	f.duos[userID] = &copied
	f.saves++
	return nil
}

func (f *fakeRepo) GetMemories(_ context.Context, userID string) ([]domain.Memory, error) {
	if m, ok := f.memories[userID]; ok {
		return append([]domain.Memory(nil), m...), nil
	}
	return []domain.Memory{}, nil
}

func (f *fakeRepo) SaveMemories(_ context.Context, userID string, memories []domain.Memory) error {
	if f.saveMemoriesErr != nil {
		return f.saveMemoriesErr
	}
	f.memories[userID] = append([]domain.Memory(nil), memories...)
	return nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

type recordingNotifier struct {
	events []Event
}

func (n *recordingNotifier) Broadcast(_ string, event interface{}) {
	if e, ok := event.(Event); ok {
		n.events = append(n.events, e)
	}
}

func completeDuo() *domain.Duo {
	return &domain.Duo{
		ID:           "AB12CD",
		DuoName:      "Lumière",
		Budget:       domain.BudgetComfort,
		CurrentPhase: domain.PhaseSketch,
		P1:           domain.Participant{Name: "Eve", Rhythm: domain.RhythmMixed, Preferences: []string{"jazz"}},
		P2:           domain.Participant{Name: "Bastien", Rhythm: domain.RhythmChill, Preferences: []string{}},
	}
}

func TestCompletePendingDoesNotPersist(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	duo := completeDuo()
	duo.P2 = domain.EmptyPartner()

	state, err := svc.Complete(context.Background(), "device-1", duo)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if !state.ShowShare {
		t.Error("expected share step for pending duo")
	}
	if state.Pending == nil || state.Duo != nil {
		t.Errorf("expected pending-only state, got %+v", state)
	}
	if repo.saves != 0 {
		t.Errorf("pending duo must not be persisted, got %d saves", repo.saves)
	}
}

func TestCompletePersistsAndClearsPending(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	pending := completeDuo()
	pending.P2 = domain.EmptyPartner()
	if _, err := svc.Complete(ctx, "device-1", pending); err != nil {
		t.Fatalf("Complete (pending) failed: %v", err)
	}

	state, err := svc.Complete(ctx, "device-1", completeDuo())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if state.ShowShare {
		t.Error("share step should be dismissed for a complete duo")
	}
	if state.Duo == nil || state.Pending != nil {
		t.Errorf("expected canonical state, got %+v", state)
	}
	if repo.duos["device-1"] == nil {
		t.Fatal("complete duo must be persisted")
	}
	if svc.pendingFor("device-1") != nil {
		t.Error("pending duo should be cleared")
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != EventDuoCompleted {
		t.Errorf("expected a duo_completed event, got %+v", notifier.events)
	}
}

func TestCompleteAssignsIDAndInitialPhase(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	duo := completeDuo()
	duo.ID = ""
	duo.CurrentPhase = ""

	state, err := svc.Complete(context.Background(), "device-1", duo)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if len(state.Duo.ID) != 6 {
		t.Errorf("expected generated 6-char id, got %q", state.Duo.ID)
	}
	if state.Duo.CurrentPhase != domain.PhaseSketch {
		t.Errorf("expected initial phase, got %q", state.Duo.CurrentPhase)
	}
}

func TestBootstrapWithPendingInvite(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	architect := completeDuo()
	architect.P2 = domain.EmptyPartner()
	token := invite.Encode(architect)

	state, err := svc.Bootstrap(context.Background(), "device-2", url.Values{"a": {token}})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if state.Pending == nil {
		t.Fatal("expected joining state with a pending duo")
	}
	if state.Pending.P1.Name != "Eve" {
		t.Errorf("unexpected architect name %q", state.Pending.P1.Name)
	}
	if repo.saves != 0 {
		t.Error("pending invite must not be persisted")
	}
}

func TestBootstrapWithCompleteInvitePersists(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	legacy := completeDuo()
	token := legacyToken(t, legacy)

	state, err := svc.Bootstrap(context.Background(), "device-2", url.Values{"alliance": {token}})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	if state.Duo == nil || state.Duo.DuoName != "Lumière" {
		t.Fatalf("expected canonical duo from invite, got %+v", state.Duo)
	}
	if repo.duos["device-2"] == nil {
		t.Error("complete invite must be persisted immediately")
	}
}

func TestBootstrapBadTokenFallsBackToStoredState(t *testing.T) {
	repo := newFakeRepo()
	repo.duos["device-1"] = completeDuo()
	repo.memories["device-1"] = []domain.Memory{{ID: "1", Title: "Épisode 1"}}
	svc := NewService(repo)

	state, err := svc.Bootstrap(context.Background(), "device-1", url.Values{"a": {"???pas-un-token???"}})
	if err != nil {
		t.Fatalf("Bootstrap must not fail on a bad token: %v", err)
	}

	if state.Duo == nil || state.Duo.DuoName != "Lumière" {
		t.Errorf("expected stored duo, got %+v", state.Duo)
	}
	if len(state.Memories) != 1 {
		t.Errorf("expected stored memories, got %+v", state.Memories)
	}
}

func TestBootstrapWithoutInviteLoadsStoredState(t *testing.T) {
	repo := newFakeRepo()
	repo.duos["device-1"] = completeDuo()
	svc := NewService(repo)

	state, err := svc.Bootstrap(context.Background(), "device-1", url.Values{})
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	if state.Duo == nil || state.Duo.ID != "AB12CD" {
		t.Errorf("expected stored duo, got %+v", state.Duo)
	}
}

func TestRecordCaptureAdvancesPhaseAndPrepends(t *testing.T) {
	repo := newFakeRepo()
	repo.duos["device-1"] = completeDuo()
	svc := NewService(repo)
	ctx := context.Background()

	captured := make([]domain.Phase, 0, 4)
	for i := 0; i < 4; i++ {
		svc.SetMission("device-1", &domain.Mission{
			EpisodeTitle: "Épisode",
			Description:  "Une mission.",
		})
		memory, err := svc.RecordCapture(ctx, "device-1", "data:image/png;base64,xyz")
		if err != nil {
			t.Fatalf("RecordCapture %d failed: %v", i, err)
		}
		if memory == nil {
			t.Fatalf("RecordCapture %d returned no memory", i)
		}
		captured = append(captured, repo.duos["device-1"].CurrentPhase)
	}

	want := []domain.Phase{
		domain.PhaseFoundations,
		domain.PhaseArchitecture,
		domain.PhaseBinding,
		domain.PhaseBinding, // clamped
	}
	for i := range want {
		if captured[i] != want[i] {
			t.Errorf("capture %d: phase = %q, want %q", i+1, captured[i], want[i])
		}
	}

	memories, _ := svc.Memories(ctx, "device-1")
	if len(memories) != 4 {
		t.Fatalf("expected 4 memories, got %d", len(memories))
	}
	// Most recent first: the last capture happened at the terminal phase.
	if memories[0].Phase != domain.PhaseBinding {
		t.Errorf("newest memory phase = %q, want %q", memories[0].Phase, domain.PhaseBinding)
	}
	if memories[3].Phase != domain.PhaseSketch {
		t.Errorf("oldest memory phase = %q, want %q", memories[3].Phase, domain.PhaseSketch)
	}
}

func TestRecordCaptureNoOpWithoutMissionOrDuo(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)
	ctx := context.Background()

	// No mission, no duo.
	memory, err := svc.RecordCapture(ctx, "device-1", "img")
	if err != nil || memory != nil {
		t.Errorf("expected no-op without mission, got %+v (err %v)", memory, err)
	}

	// Mission but no canonical duo.
	svc.SetMission("device-1", &domain.Mission{EpisodeTitle: "Épisode", Description: "d"})
	memory, err = svc.RecordCapture(ctx, "device-1", "img")
	if err != nil || memory != nil {
		t.Errorf("expected no-op without duo, got %+v (err %v)", memory, err)
	}
	if repo.saves != 0 {
		t.Errorf("no-op capture must not persist anything, got %d saves", repo.saves)
	}
}

func TestRecordCaptureMemoryFailureKeepsPhase(t *testing.T) {
	repo := newFakeRepo()
	repo.duos["device-1"] = completeDuo()
	repo.saveMemoriesErr = errors.New("disk full")
	svc := NewService(repo)

	svc.SetMission("device-1", &domain.Mission{EpisodeTitle: "Épisode", Description: "d"})
	if _, err := svc.RecordCapture(context.Background(), "device-1", "img"); err == nil {
		t.Fatal("expected RecordCapture to surface the memories write failure")
	}

	// The phase only advances once its memory is durable.
	if got := repo.duos["device-1"].CurrentPhase; got != domain.PhaseSketch {
		t.Errorf("phase advanced despite failed memory write, got %q", got)
	}
	if repo.saves != 0 {
		t.Errorf("duo must not be rewritten on a failed capture, got %d saves", repo.saves)
	}
}

func TestRecordCaptureClearsActiveMission(t *testing.T) {
	repo := newFakeRepo()
	repo.duos["device-1"] = completeDuo()
	svc := NewService(repo)

	svc.SetMission("device-1", &domain.Mission{EpisodeTitle: "Épisode", Description: "d"})
	if _, err := svc.RecordCapture(context.Background(), "device-1", "img"); err != nil {
		t.Fatalf("RecordCapture failed: %v", err)
	}
	if svc.ActiveMission("device-1") != nil {
		t.Error("capture should clear the active mission")
	}
}

// legacyToken encodes a full duo record the way pre-compact links did.
func legacyToken(t *testing.T, duo *domain.Duo) string {
	t.Helper()
	raw, err := json.Marshal(duo)
	if err != nil {
		t.Fatalf("encode legacy token: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}
