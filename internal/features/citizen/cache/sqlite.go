package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/platform/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the local cache database at path.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS citizens (
		code TEXT PRIMARY KEY,
		record TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		code TEXT NOT NULL,
		secret TEXT NOT NULL
	);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Get(ctx context.Context, code string) (*models.Citizen, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM citizens WHERE code = ?`, code).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read cache record")
	}

	var citizen models.Citizen
	if err := json.Unmarshal([]byte(raw), &citizen); err != nil {
		// A corrupted blob is treated as absent, not raised.
		logger.Warn().Str("code", code).Err(err).Msg("corrupted cache record, treating as absent")
		return nil, false, nil
	}
	return models.Normalize(&citizen), true, nil
}

func (s *sqliteStore) Put(ctx context.Context, citizen *models.Citizen) error {
	raw, err := json.Marshal(models.Normalize(citizen))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal cache record")
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO citizens (code, record) VALUES (?, ?)
	ON CONFLICT (code) DO UPDATE SET record = excluded.record`,
		citizen.Code, string(raw))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "write cache record")
	}
	return nil
}

func (s *sqliteStore) SessionPointer(ctx context.Context) (string, string, bool, error) {
	var code, secret string
	err := s.db.QueryRowContext(ctx,
		`SELECT code, secret FROM session WHERE id = 1`).Scan(&code, &secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", false, nil
		}
		return "", "", false, apperrors.Wrap(err, apperrors.ErrCodeInternal, "read session pointer")
	}
	return code, secret, true, nil
}

func (s *sqliteStore) SetSessionPointer(ctx context.Context, code, secret string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO session (id, code, secret) VALUES (1, ?, ?)
	ON CONFLICT (id) DO UPDATE SET code = excluded.code, secret = excluded.secret`,
		code, secret)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "write session pointer")
	}
	return nil
}

func (s *sqliteStore) ClearSessionPointer(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "clear session pointer")
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
