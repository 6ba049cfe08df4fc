package repository

import (
	"context"

	"mooderia-backend/internal/features/citizen/models"
)

// Unsubscribe tears down a live subscription. It is synchronous: once it
// returns, the callback will not be invoked again, even for a push that was
// already in flight.
type Unsubscribe func()

// RemoteStore abstracts the authoritative record store. Two backends exist:
// redis (pub/sub push) and postgres (request/response, polled). Every
// implementation maps transport failures to exactly three outcome kinds
// before they reach service logic: IDENTITY_NOT_FOUND (confirmed absence),
// HANDLE_TAKEN (uniqueness refusal) and REMOTE_UNAVAILABLE (anything that
// might have succeeded).
type RemoteStore interface {
	FetchByCode(ctx context.Context, code string) (*models.Citizen, error)

	// FetchByHandle resolves a display handle (case-insensitive) to a
	// citizen code.
	FetchByHandle(ctx context.Context, handle string) (string, error)

	// Upsert replaces the whole record and claims the handle index entry
	// when a handle is set.
	Upsert(ctx context.Context, citizen *models.Citizen) error

	// Search returns records whose code starts with the given prefix.
	Search(ctx context.Context, prefix string) ([]*models.Citizen, error)

	// List returns all records.
	List(ctx context.Context) ([]*models.Citizen, error)

	// Subscribe delivers the full record on every remote change.
	Subscribe(ctx context.Context, code string, fn func(*models.Citizen)) (Unsubscribe, error)

	AppendMailbox(ctx context.Context, msg models.Message) error

	// FetchMailbox returns the recipient's messages, newest first.
	FetchMailbox(ctx context.Context, code string) ([]models.Message, error)

	// MarkMailboxRead flips every unread message to read in one batched
	// update.
	MarkMailboxRead(ctx context.Context, code string) error

	// SubscribeMailbox delivers the full mailbox, newest first, on every
	// change.
	SubscribeMailbox(ctx context.Context, code string, fn func([]models.Message)) (Unsubscribe, error)
}
