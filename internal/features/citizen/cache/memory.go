package cache

import (
	"context"
	"sync"

	"mooderia-backend/internal/features/citizen/models"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu       sync.Mutex
	citizens map[string]*models.Citizen

	sessionSet    bool
	sessionCode   string
	sessionSecret string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{citizens: make(map[string]*models.Citizen)}
}

func (s *MemoryStore) Get(ctx context.Context, code string) (*models.Citizen, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	citizen, ok := s.citizens[code]
	if !ok {
		return nil, false, nil
	}
	return citizen.Clone(), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, citizen *models.Citizen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.citizens[citizen.Code] = citizen.Clone()
	return nil
}

func (s *MemoryStore) SessionPointer(ctx context.Context) (string, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sessionSet {
		return "", "", false, nil
	}
	return s.sessionCode, s.sessionSecret, true, nil
}

func (s *MemoryStore) SetSessionPointer(ctx context.Context, code, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionSet = true
	s.sessionCode = code
	s.sessionSecret = secret
	return nil
}

func (s *MemoryStore) ClearSessionPointer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionSet = false
	s.sessionCode = ""
	s.sessionSecret = ""
	return nil
}

func (s *MemoryStore) Close() error { return nil }
