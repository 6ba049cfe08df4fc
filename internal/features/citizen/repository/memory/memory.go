package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

// RemoteStore is a map-backed RemoteStore used in tests and local
// development. Mutations notify subscribers synchronously. Availability can
// be toggled to exercise the fallback paths, and single-record upsert
// failures can be injected to exercise partial graph writes.
type RemoteStore struct {
	mu          sync.Mutex
	citizens    map[string]*models.Citizen
	handles     map[string]string
	mailboxes   map[string][]models.Message
	unavailable bool
	failUpsert  map[string]bool

	citizenSubs map[string][]*subscriber[*models.Citizen]
	mailboxSubs map[string][]*subscriber[[]models.Message]
}

type subscriber[T any] struct {
	guard *repository.Guard
	fn    func(T)
}

func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		citizens:    make(map[string]*models.Citizen),
		handles:     make(map[string]string),
		mailboxes:   make(map[string][]models.Message),
		failUpsert:  make(map[string]bool),
		citizenSubs: make(map[string][]*subscriber[*models.Citizen]),
		mailboxSubs: make(map[string][]*subscriber[[]models.Message]),
	}
}

// SetUnavailable makes every operation fail with REMOTE_UNAVAILABLE.
func (r *RemoteStore) SetUnavailable(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = down
}

// FailUpsertFor makes Upsert fail for one specific code only.
func (r *RemoteStore) FailUpsertFor(code string, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failUpsert[code] = fail
}

func (r *RemoteStore) down() error {
	if r.unavailable {
		return apperrors.NewRemoteUnavailable("memory store", errors.New("simulated outage"))
	}
	return nil
}

func (r *RemoteStore) FetchByCode(ctx context.Context, code string) (*models.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}

	citizen, ok := r.citizens[code]
	if !ok {
		return nil, apperrors.NewIdentityNotFound(code)
	}
	return citizen.Clone(), nil
}

func (r *RemoteStore) FetchByHandle(ctx context.Context, handle string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return "", err
	}

	code, ok := r.handles[strings.ToLower(handle)]
	if !ok {
		return "", apperrors.NewIdentityNotFound(handle)
	}
	return code, nil
}

func (r *RemoteStore) Upsert(ctx context.Context, citizen *models.Citizen) error {
	r.mu.Lock()
	if err := r.down(); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.failUpsert[citizen.Code] {
		r.mu.Unlock()
		return apperrors.NewRemoteUnavailable("memory upsert", errors.New("simulated write failure"))
	}

	if citizen.Handle != "" {
		key := strings.ToLower(citizen.Handle)
		if owner, taken := r.handles[key]; taken && owner != citizen.Code {
			r.mu.Unlock()
			return apperrors.NewHandleTaken(citizen.Handle)
		}
		r.handles[key] = citizen.Code
	}

	// A handle change releases the old index entry.
	if prev, ok := r.citizens[citizen.Code]; ok &&
		prev.Handle != "" && !strings.EqualFold(prev.Handle, citizen.Handle) {
		delete(r.handles, strings.ToLower(prev.Handle))
	}

	stored := citizen.Clone()
	r.citizens[stored.Code] = stored
	subs := append([]*subscriber[*models.Citizen](nil), r.citizenSubs[stored.Code]...)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.guard.Deliver(func() { sub.fn(stored.Clone()) })
	}
	return nil
}

func (r *RemoteStore) Search(ctx context.Context, prefix string) ([]*models.Citizen, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}

	var citizens []*models.Citizen
	for code, citizen := range r.citizens {
		if strings.HasPrefix(code, prefix) {
			citizens = append(citizens, citizen.Clone())
		}
	}
	sort.Slice(citizens, func(i, j int) bool { return citizens[i].Code < citizens[j].Code })
	return citizens, nil
}

func (r *RemoteStore) List(ctx context.Context) ([]*models.Citizen, error) {
	return r.Search(ctx, "")
}

func (r *RemoteStore) Subscribe(ctx context.Context, code string, fn func(*models.Citizen)) (repository.Unsubscribe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}

	sub := &subscriber[*models.Citizen]{guard: repository.NewGuard(), fn: fn}
	r.citizenSubs[code] = append(r.citizenSubs[code], sub)
	return sub.guard.Stop, nil
}

func (r *RemoteStore) AppendMailbox(ctx context.Context, msg models.Message) error {
	r.mu.Lock()
	if err := r.down(); err != nil {
		r.mu.Unlock()
		return err
	}

	r.mailboxes[msg.Recipient] = append(r.mailboxes[msg.Recipient], msg)
	r.mu.Unlock()

	r.notifyMailbox(msg.Recipient)
	return nil
}

func (r *RemoteStore) FetchMailbox(ctx context.Context, code string) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}
	return r.snapshotMailbox(code), nil
}

func (r *RemoteStore) snapshotMailbox(code string) []models.Message {
	messages := append([]models.Message(nil), r.mailboxes[code]...)
	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp > messages[j].Timestamp })
	return messages
}

func (r *RemoteStore) MarkMailboxRead(ctx context.Context, code string) error {
	r.mu.Lock()
	if err := r.down(); err != nil {
		r.mu.Unlock()
		return err
	}

	dirty := false
	box := r.mailboxes[code]
	for i := range box {
		if !box[i].Read {
			box[i].Read = true
			dirty = true
		}
	}
	r.mu.Unlock()

	if dirty {
		r.notifyMailbox(code)
	}
	return nil
}

func (r *RemoteStore) SubscribeMailbox(ctx context.Context, code string, fn func([]models.Message)) (repository.Unsubscribe, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.down(); err != nil {
		return nil, err
	}

	sub := &subscriber[[]models.Message]{guard: repository.NewGuard(), fn: fn}
	r.mailboxSubs[code] = append(r.mailboxSubs[code], sub)
	return sub.guard.Stop, nil
}

func (r *RemoteStore) notifyMailbox(code string) {
	r.mu.Lock()
	messages := r.snapshotMailbox(code)
	subs := append([]*subscriber[[]models.Message](nil), r.mailboxSubs[code]...)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.guard.Deliver(func() { sub.fn(messages) })
	}
}
