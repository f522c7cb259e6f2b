package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
	"github.com/ashureev/sdlc-studio/internal/shared"
	"github.com/cenkalti/backoff/v5"
	_ "modernc.org/sqlite"
)

const (
	busyRetries   = 4
	busyBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS studio_sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		cursor INTEGER NOT NULL DEFAULT 0,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_studio_sessions_updated ON studio_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.withBusyRetry(ctx, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.UserID, user.Username, user.LastSeenAt.Unix(),
			user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`

	var rows int64
	err := s.withBusyRetry(ctx, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// GetSession loads a studio session.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	query := `SELECT state_json FROM studio_sessions WHERE user_id = ? AND session_id = ?`

	var stateJSON string
	err := s.db.QueryRowContext(ctx, query, userID, sessionID).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan studio session: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal([]byte(stateJSON), &sess); err != nil {
		return nil, fmt.Errorf("decode studio session %s: %w", domain.SessionKey(userID, sessionID), err)
	}
	if sess.Runs == nil {
		sess.Runs = make(map[domain.AgentID]*domain.RunState)
	}
	return &sess, nil
}

// SaveSession creates or replaces a studio session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	stateJSON, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode studio session: %w", err)
	}

	query := `
	INSERT INTO studio_sessions (user_id, session_id, cursor, state_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id, session_id) DO UPDATE SET
		cursor = excluded.cursor,
		state_json = excluded.state_json,
		updated_at = excluded.updated_at`

	return s.withBusyRetry(ctx, "save studio session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.UserID, sess.SessionID, sess.Pipeline.Cursor, string(stateJSON),
			sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
		)
		return err
	})
}

// DeleteSession removes a studio session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	query := `DELETE FROM studio_sessions WHERE user_id = ? AND session_id = ?`
	return s.withBusyRetry(ctx, "delete studio session", func() error {
		_, err := s.db.ExecContext(ctx, query, userID, sessionID)
		return err
	})
}

// ListIdleSessions returns sessions not updated since cutoff.
func (s *SQLiteStore) ListIdleSessions(ctx context.Context, cutoff time.Time) ([]SessionRef, error) {
	query := `
		SELECT user_id, session_id, updated_at
		FROM studio_sessions WHERE updated_at < ?
		ORDER BY updated_at`

	rows, err := s.db.QueryContext(ctx, query, cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query idle sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close idle sessions rows", "error", closeErr)
		}
	}()

	var refs []SessionRef
	for rows.Next() {
		var ref SessionRef
		var updatedAt int64
		if err := rows.Scan(&ref.UserID, &ref.SessionID, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan idle session row: %w", err)
		}
		ref.UpdatedAt = time.Unix(updatedAt, 0)
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle sessions: %w", err)
	}
	return refs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withBusyRetry runs fn, retrying SQLITE_BUSY and "database is locked"
// failures with exponential backoff.
func (s *SQLiteStore) withBusyRetry(ctx context.Context, op string, fn func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = busyBaseDelay

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if shared.IsSQLiteConflictError(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(busyRetries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Debug("sqlite busy, retrying", "op", op, "attempt", attempt, "delay", delay, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
