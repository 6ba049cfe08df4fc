package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/lib/pq"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

const uniqueViolation = "23505"

type remoteStore struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewRemoteStore returns the relational remote store. There is no push
// channel on this backend, so subscriptions poll updated_at at the
// configured interval.
func NewRemoteStore(db *sql.DB, pollInterval time.Duration) repository.RemoteStore {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &remoteStore{db: db, pollInterval: pollInterval}
}

// EnsureSchema creates the citizens and mailbox tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS citizens (
		code TEXT PRIMARY KEY,
		handle TEXT NOT NULL DEFAULT '',
		record JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE UNIQUE INDEX IF NOT EXISTS citizens_handle_idx
		ON citizens (lower(handle)) WHERE handle <> '';
	CREATE TABLE IF NOT EXISTS mailbox (
		id TEXT PRIMARY KEY,
		recipient TEXT NOT NULL,
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		ts BIGINT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS mailbox_recipient_idx ON mailbox (recipient, ts DESC);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return apperrors.NewRemoteUnavailable("ensure schema", err)
	}
	return nil
}

func classify(operation string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return apperrors.New(apperrors.ErrCodeHandleTaken, "handle already claimed")
	}
	return apperrors.NewRemoteUnavailable(operation, err)
}

func (r *remoteStore) FetchByCode(ctx context.Context, code string) (*models.Citizen, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT record FROM citizens WHERE code = $1`, code).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewIdentityNotFound(code)
		}
		return nil, classify("fetch citizen", err)
	}

	var citizen models.Citizen
	if err := json.Unmarshal(raw, &citizen); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "malformed citizen record")
	}
	return models.Normalize(&citizen), nil
}

func (r *remoteStore) FetchByHandle(ctx context.Context, handle string) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx,
		`SELECT code FROM citizens WHERE lower(handle) = lower($1)`, handle).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperrors.NewIdentityNotFound(handle)
		}
		return "", classify("fetch handle", err)
	}
	return code, nil
}

func (r *remoteStore) Upsert(ctx context.Context, citizen *models.Citizen) error {
	raw, err := json.Marshal(models.Normalize(citizen))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal citizen record")
	}

	const q = `
	INSERT INTO citizens (code, handle, record, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (code) DO UPDATE SET
		handle = EXCLUDED.handle,
		record = EXCLUDED.record,
		updated_at = now();
`
	if _, err := r.db.ExecContext(ctx, q, citizen.Code, citizen.Handle, raw); err != nil {
		return classify("upsert citizen", err)
	}
	return nil
}

func (r *remoteStore) Search(ctx context.Context, prefix string) ([]*models.Citizen, error) {
	return r.query(ctx,
		`SELECT record FROM citizens WHERE code LIKE $1 || '%' ORDER BY code`, prefix)
}

func (r *remoteStore) List(ctx context.Context) ([]*models.Citizen, error) {
	return r.query(ctx, `SELECT record FROM citizens ORDER BY code`)
}

func (r *remoteStore) query(ctx context.Context, q string, args ...interface{}) ([]*models.Citizen, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify("query citizens", err)
	}
	defer rows.Close()

	var citizens []*models.Citizen
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, classify("scan citizen row", err)
		}
		var citizen models.Citizen
		if err := json.Unmarshal(raw, &citizen); err != nil {
			continue
		}
		citizens = append(citizens, models.Normalize(&citizen))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate citizens", err)
	}
	return citizens, nil
}

func (r *remoteStore) Subscribe(ctx context.Context, code string, fn func(*models.Citizen)) (repository.Unsubscribe, error) {
	guard := repository.NewGuard()
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		var lastSeen time.Time
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			var raw []byte
			var updatedAt time.Time
			err := r.db.QueryRowContext(context.Background(),
				`SELECT record, updated_at FROM citizens WHERE code = $1`, code).
				Scan(&raw, &updatedAt)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					logger.Warn().Str("code", code).Err(err).Msg("citizen poll failed")
				}
				continue
			}
			if !updatedAt.After(lastSeen) {
				continue
			}
			lastSeen = updatedAt

			var citizen models.Citizen
			if err := json.Unmarshal(raw, &citizen); err != nil {
				logger.Warn().Str("code", code).Err(err).Msg("dropping malformed citizen row")
				continue
			}
			guard.Deliver(func() { fn(models.Normalize(&citizen)) })
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
		guard.Stop()
	}, nil
}

func (r *remoteStore) AppendMailbox(ctx context.Context, msg models.Message) error {
	const q = `
	INSERT INTO mailbox (id, recipient, sender, body, ts, read)
	VALUES ($1, $2, $3, $4, $5, $6);
`
	if _, err := r.db.ExecContext(ctx, q,
		msg.ID, msg.Recipient, msg.Sender, msg.Text, msg.Timestamp, msg.Read); err != nil {
		return classify("append mailbox", err)
	}
	return nil
}

func (r *remoteStore) FetchMailbox(ctx context.Context, code string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, recipient, sender, body, ts, read
		 FROM mailbox WHERE recipient = $1 ORDER BY ts DESC`, code)
	if err != nil {
		return nil, classify("fetch mailbox", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.Recipient, &msg.Sender, &msg.Text, &msg.Timestamp, &msg.Read); err != nil {
			return nil, classify("scan message row", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate mailbox", err)
	}
	return messages, nil
}

func (r *remoteStore) MarkMailboxRead(ctx context.Context, code string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE mailbox SET read = TRUE WHERE recipient = $1 AND read = FALSE`, code); err != nil {
		return classify("mark mailbox read", err)
	}
	return nil
}

func (r *remoteStore) SubscribeMailbox(ctx context.Context, code string, fn func([]models.Message)) (repository.Unsubscribe, error) {
	guard := repository.NewGuard()
	stop := make(chan struct{})

	go func() {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		lastFingerprint := ""
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			messages, err := r.FetchMailbox(context.Background(), code)
			if err != nil {
				logger.Warn().Str("code", code).Err(err).Msg("mailbox poll failed")
				continue
			}

			fp := mailboxFingerprint(messages)
			if fp == lastFingerprint {
				continue
			}
			lastFingerprint = fp

			guard.Deliver(func() { fn(messages) })
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
		guard.Stop()
	}, nil
}

// mailboxFingerprint detects mailbox changes across polls: count, newest
// timestamp and unread count all participate so mark-read is noticed too.
func mailboxFingerprint(messages []models.Message) string {
	var newest int64
	unread := 0
	for _, msg := range messages {
		if msg.Timestamp > newest {
			newest = msg.Timestamp
		}
		if !msg.Read {
			unread++
		}
	}
	fp, _ := json.Marshal([3]int64{int64(len(messages)), newest, int64(unread)})
	return string(fp)
}
