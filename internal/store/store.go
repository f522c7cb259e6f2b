// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/sdlc-studio/internal/domain"
)

// SessionRef identifies a stored studio session.
type SessionRef struct {
	UserID    string
	SessionID string
	UpdatedAt time.Time
}

// Repository defines the interface for persisting users and studio sessions.
type Repository interface {
	// GetUser retrieves a user by their user ID. It returns nil, nil when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetSession loads a studio session. It returns nil, nil when missing.
	GetSession(ctx context.Context, userID, sessionID string) (*domain.Session, error)

	// SaveSession creates or replaces a studio session.
	SaveSession(ctx context.Context, sess *domain.Session) error

	// DeleteSession removes a studio session.
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// ListIdleSessions returns sessions not updated since cutoff.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]SessionRef, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
