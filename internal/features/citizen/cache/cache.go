package cache

import (
	"context"

	"mooderia-backend/internal/features/citizen/models"
)

// Store is the durable local mirror of citizen records plus the session
// pointer. Every remote mutation is written through here so a later remote
// outage still serves the last known state. Writes are always whole-record
// replaces keyed by code, never field patches.
type Store interface {
	// Get returns the cached record, or ok=false when absent. A corrupted
	// stored blob counts as absent, never as an error.
	Get(ctx context.Context, code string) (*models.Citizen, bool, error)

	// Put replaces the whole record for its code.
	Put(ctx context.Context, citizen *models.Citizen) error

	// SessionPointer returns the retained (code, secret) pair, or ok=false
	// when no session is stored.
	SessionPointer(ctx context.Context) (code, secret string, ok bool, err error)

	SetSessionPointer(ctx context.Context, code, secret string) error

	ClearSessionPointer(ctx context.Context) error

	Close() error
}
