//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/config"
	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/identity"
	"github.com/ashureev/sdlc-studio/internal/store"
	"github.com/go-chi/chi/v5"
)

type fakeRepo struct {
	store.Repository
	mu      sync.Mutex
	users   map[string]*domain.User
	pingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*domain.User)}
}

func (f *fakeRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userID]
	if user == nil {
		return nil, nil
	}
	copy := *user
	return &copy, nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy := *user
	f.users[user.UserID] = &copy
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, _ string, _ time.Time) error { return nil }
func (f *fakeRepo) Ping(_ context.Context) error                                 { return f.pingErr }

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

func TestGetMeReturnsAnonymousUser(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(identity.SessionHeaderName, "tab-7")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["session_id"] != "tab-7" {
		t.Fatalf("expected session_id tab-7, got %v", got["session_id"])
	}
	if got["username"] == "" {
		t.Fatal("expected username to be set")
	}
}

func TestGetConfigExposesGateway(t *testing.T) {
	cfg := &config.Config{SessionTTL: time.Hour}
	cfg.Gateway.Provider = "google"
	cfg.Gateway.Timeout = 30 * time.Second
	h := NewHandler(newFakeRepo(), cfg)

	rr := httptest.NewRecorder()
	h.GetConfig(rr, httptest.NewRequest(http.MethodGet, "/api/config", nil))

	var got map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["provider"] != "google" {
		t.Fatalf("unexpected provider: %v", got["provider"])
	}
	if got["session_ttl_seconds"] != float64(3600) {
		t.Fatalf("unexpected ttl: %v", got["session_ttl_seconds"])
	}
	if agents, ok := got["agents"].([]any); !ok || len(agents) != 7 {
		t.Fatalf("expected 7 agents, got %v", got["agents"])
	}
}

func TestHealthReportsDatabase(t *testing.T) {
	repo := newFakeRepo()
	h := NewHealthHandler(repo)

	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	repo.pingErr = errors.New("disk gone")
	rr = httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
