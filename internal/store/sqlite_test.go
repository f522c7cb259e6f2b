package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	missing, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	now := time.Unix(1714550400, 0)
	require.NoError(t, s.UpsertUser(ctx, &domain.User{
		UserID: "u1", Username: "anon-u1", LastSeenAt: now, CreatedAt: now, UpdatedAt: now,
	}))

	later := now.Add(time.Hour)
	require.NoError(t, s.UpdateLastSeen(ctx, "u1", later))

	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "anon-u1", got.Username)
	assert.Equal(t, later.Unix(), got.LastSeenAt.Unix())
	assert.Equal(t, now.Unix(), got.CreatedAt.Unix())
}

func TestSessionPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Unix(1714550400, 0).UTC()

	sess := domain.NewSession("u1", "tab-1", now)
	run := domain.NewRunState(domain.AgentAnalyst, now)
	run.Phase = domain.PhaseAsking
	run.Spec = "Build a loyalty app"
	run.Append(domain.RoleUser, "Build a loyalty app", domain.DecisionNone, now)
	run.Append(domain.RoleAgent, "Points? [N]", domain.DecisionNewQuestion, now)
	sess.Runs[domain.AgentAnalyst] = run
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, "u1", "tab-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	gotRun := got.Run(domain.AgentAnalyst)
	require.NotNil(t, gotRun)
	assert.Equal(t, domain.PhaseAsking, gotRun.Phase)
	assert.Len(t, gotRun.Transcript, 2)
	assert.Equal(t, domain.DecisionNewQuestion, gotRun.Transcript[1].Decision)

	sess.Pipeline.Cursor = 1
	sess.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, s.SaveSession(ctx, sess))
	got, err = s.GetSession(ctx, "u1", "tab-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Pipeline.Cursor)

	other, err := s.GetSession(ctx, "u1", "tab-2")
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.DeleteSession(ctx, "u1", "tab-1"))
	got, err = s.GetSession(ctx, "u1", "tab-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListIdleSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Unix(1714550400, 0)

	old := domain.NewSession("u1", "old", base)
	fresh := domain.NewSession("u1", "fresh", base.Add(2*time.Hour))
	require.NoError(t, s.SaveSession(ctx, old))
	require.NoError(t, s.SaveSession(ctx, fresh))

	refs, err := s.ListIdleSessions(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "old", refs[0].SessionID)
}

func TestWithBusyRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calls := 0
	err := s.withBusyRetry(ctx, "op", func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = s.withBusyRetry(ctx, "op", func() error {
		calls++
		return errors.New("constraint failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "op: constraint failed")
}
