// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/prologuebox/prologue/internal/domain"
)

// Repository defines the interface for persisting device, duo and memory data.
//
// The duo and memory slots hold whole serialized records and are overwritten
// wholesale on every mutation; a missing slot means "no active duo" /
// "no memories yet". Corrupt persisted data is treated as absent.
type Repository interface {
	// GetUser retrieves a device identity by its user ID.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a device identity record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// GetDuo loads the canonical duo for a device, or nil if absent.
	GetDuo(ctx context.Context, userID string) (*domain.Duo, error)

	// SaveDuo overwrites the canonical duo for a device.
	SaveDuo(ctx context.Context, userID string, duo *domain.Duo) error

	// GetMemories loads the memory sequence for a device, most recent first.
	// An absent slot yields an empty slice.
	GetMemories(ctx context.Context, userID string) ([]domain.Memory, error)

	// SaveMemories overwrites the memory sequence for a device.
	SaveMemories(ctx context.Context, userID string, memories []domain.Memory) error

	// Ping verifies database connectivity and returns an error if the
	// database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
