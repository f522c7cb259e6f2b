package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userRepo struct {
	store.Repository
	users     map[string]*domain.User
	lastSeens int
}

func newUserRepo() *userRepo {
	return &userRepo{users: make(map[string]*domain.User)}
}

func (r *userRepo) GetUser(_ context.Context, userID string) (*domain.User, error) {
	return r.users[userID], nil
}

func (r *userRepo) UpsertUser(_ context.Context, u *domain.User) error {
	r.users[u.UserID] = u
	return nil
}

func (r *userRepo) UpdateLastSeen(_ context.Context, userID string, at time.Time) error {
	r.lastSeens++
	r.users[userID].LastSeenAt = at
	return nil
}

func serve(t *testing.T, repo store.Repository, req *http.Request) (*httptest.ResponseRecorder, context.Context) {
	t.Helper()
	var seen context.Context
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func TestMiddlewareIssuesAnonymousIdentity(t *testing.T) {
	repo := newUserRepo()
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set(SessionHeaderName, "tab-42")

	rec, ctx := serve(t, repo, req)
	require.NotNil(t, ctx)

	userID := UserIDFromContext(ctx)
	assert.True(t, isValidAnonID(userID), userID)
	assert.Equal(t, "tab-42", SessionIDFromContext(ctx))
	assert.Equal(t, deriveUsername(userID), UsernameFromContext(ctx))
	require.Contains(t, repo.users, userID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, userID, cookies[0].Value)
}

func TestMiddlewareReusesCookieAndTouchesIdleUser(t *testing.T) {
	repo := newUserRepo()
	id := generateAnonID()
	repo.users[id] = &domain.User{UserID: id, LastSeenAt: time.Now().Add(-time.Hour)}

	req := httptest.NewRequest(http.MethodGet, "/api/me?session_id=../etc", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	_, ctx := serve(t, repo, req)

	assert.Equal(t, id, UserIDFromContext(ctx))
	assert.Equal(t, DefaultSessionIDValue, SessionIDFromContext(ctx))
	assert.Equal(t, 1, repo.lastSeens)

	req = httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	serve(t, repo, req)
	assert.Equal(t, 1, repo.lastSeens)
}

func TestInvalidCookieIsReplaced(t *testing.T) {
	repo := newUserRepo()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "forged"})
	_, ctx := serve(t, repo, req)
	assert.NotEqual(t, "forged", UserIDFromContext(ctx))
}
