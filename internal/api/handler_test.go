package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prologuebox/prologue/internal/domain"
	"github.com/prologuebox/prologue/internal/identity"
	"github.com/prologuebox/prologue/internal/mission"
	"github.com/prologuebox/prologue/internal/session"
)

type fakeRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	duos     map[string]*domain.Duo
	memories map[string][]domain.Memory
	duoSaves int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:    make(map[string]*domain.User),
		duos:     make(map[string]*domain.Duo),
		memories: make(map[string][]domain.Memory),
	}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *user
	f.users[user.UserID] = &copied
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }

func (f *fakeRepo) GetDuo(_ context.Context, userID string) (*domain.Duo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	duo := f.duos[userID]
	if duo == nil {
		return nil, nil
	}
	copied := *duo
	return &copied, nil
}

func (f *fakeRepo) SaveDuo(_ context.Context, userID string, duo *domain.Duo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *duo
	f.duos[userID] = &copied
	f.duoSaves++
	return nil
}

func (f *fakeRepo) GetMemories(_ context.Context, userID string) ([]domain.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Memory(nil), f.memories[userID]...), nil
}

func (f *fakeRepo) SaveMemories(_ context.Context, userID string, memories []domain.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memories[userID] = append([]domain.Memory(nil), memories...)
	return nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

// stubGenerator returns a fixed mission or error.
type stubGenerator struct {
	mission *domain.Mission
	err     error
}

func (s *stubGenerator) Generate(context.Context, domain.MissionRequest) (*domain.Mission, error) {
	return s.mission, s.err
}

func (s *stubGenerator) Speak(context.Context, string) ([]byte, error) {
	return []byte{0x01, 0x02}, s.err
}

// testServer wires the API behind the identity middleware, the way the
// real router does.
type testServer struct {
	srv    *httptest.Server
	client *http.Client
	repo   *fakeRepo
}

func newTestServer(t *testing.T, gen *stubGenerator) *testServer {
	t.Helper()

	repo := newFakeRepo()
	sessions := session.NewService(repo)

	var generator mission.Generator
	if gen != nil {
		generator = gen
	}
	base := NewHandler(repo, sessions, generator, "")

	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	NewDuoHandler(base, gen != nil).RegisterRoutes(r)
	NewMissionHandler(base).RegisterRoutes(r)
	NewMemoryHandler(base).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar := newCookieClient(t, srv)
	return &testServer{srv: srv, client: jar, repo: repo}
}

func newCookieClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("create cookie jar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar
	return client
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}
