// Package subscription maintains the live push listeners for the active session:
// exactly one profile listener and one mailbox listener per logged-in
// citizen, torn down before any account switch so a stale account never
// receives another account's pushes.
package subscription

import (
	"context"
	"sort"
	"sync"

	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

// PushGate decides whether a profile push for a code may be applied right
// now. The identity service implements it to fence off codes with
// un-acknowledged local writes.
type PushGate interface {
	AllowPush(code string) bool
}

// ProfileFunc receives normalized profile pushes.
type ProfileFunc func(*models.Citizen)

// MailboxFunc receives the full mailbox, newest first.
type MailboxFunc func([]models.Message)

type Manager struct {
	remote repository.RemoteStore
	cache  cache.Store
	gate   PushGate

	mu          sync.Mutex
	code        string
	unsubscribe []repository.Unsubscribe
}

func NewManager(remote repository.RemoteStore, localCache cache.Store, gate PushGate) *Manager {
	return &Manager{remote: remote, cache: localCache, gate: gate}
}

// Attach installs the profile and mailbox listeners for code, tearing down
// any listeners from a previous session first. Incoming profile pushes are
// normalized and mirrored into the local cache before reaching onProfile.
func (m *Manager) Attach(ctx context.Context, code string, onProfile ProfileFunc, onMailbox MailboxFunc) error {
	m.Detach()

	unsubProfile, err := m.remote.Subscribe(ctx, code, func(citizen *models.Citizen) {
		m.handleProfilePush(code, citizen, onProfile)
	})
	if err != nil {
		return err
	}

	unsubMailbox, err := m.remote.SubscribeMailbox(ctx, code, func(messages []models.Message) {
		m.handleMailboxPush(messages, onMailbox)
	})
	if err != nil {
		unsubProfile()
		return err
	}

	m.mu.Lock()
	m.code = code
	m.unsubscribe = []repository.Unsubscribe{unsubProfile, unsubMailbox}
	m.mu.Unlock()

	logger.Debug().Str("code", code).Msg("sync listeners attached")
	return nil
}

// Detach tears down the active listeners. Synchronous: after it returns no
// further callback fires.
func (m *Manager) Detach() {
	m.mu.Lock()
	unsubs := m.unsubscribe
	code := m.code
	m.unsubscribe = nil
	m.code = ""
	m.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if code != "" {
		logger.Debug().Str("code", code).Msg("sync listeners detached")
	}
}

// Active returns the code the manager is currently attached to.
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

func (m *Manager) handleProfilePush(code string, citizen *models.Citizen, onProfile ProfileFunc) {
	if m.gate != nil && !m.gate.AllowPush(code) {
		// A local write is still awaiting its remote ack; applying this
		// push could resurrect the pre-write state.
		logger.Debug().Str("code", code).Msg("profile push dropped, local write in flight")
		return
	}

	models.Normalize(citizen)
	if err := m.cache.Put(context.Background(), citizen); err != nil {
		logger.Warn().Str("code", code).Err(err).Msg("cache mirror of pushed profile failed")
	}
	if onProfile != nil {
		onProfile(citizen)
	}
}

func (m *Manager) handleMailboxPush(messages []models.Message, onMailbox MailboxFunc) {
	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp > messages[j].Timestamp })
	if onMailbox != nil {
		onMailbox(messages)
	}
}
