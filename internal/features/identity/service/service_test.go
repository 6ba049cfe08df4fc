package service

import (
	"context"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository/memory"
)

func newFixture() (IdentityService, *memory.RemoteStore, *cache.MemoryStore) {
	remote := memory.NewRemoteStore()
	localCache := cache.NewMemoryStore()
	return NewIdentityService(remote, localCache), remote, localCache
}

func TestRegisterMintsCodeAndSyncs(t *testing.T) {
	ctx := context.Background()
	svc, remote, localCache := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, result.Status)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), result.Code)

	stored, err := remote.FetchByCode(ctx, result.Code)
	require.NoError(t, err)
	assert.Equal(t, "Mira", stored.DisplayName)
	assert.NotEmpty(t, stored.SecretHash)
	assert.NotEqual(t, "phrase", stored.SecretHash)

	mirrored, ok, err := localCache.Get(ctx, result.Code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Mira", mirrored.DisplayName)

	code, secret, ok, err := localCache.SessionPointer(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.Code, code)
	assert.Equal(t, "phrase", secret)
}

func TestRegisterMintsDistinctCodes(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Citizen"}, "phrase")
		require.NoError(t, err)
		assert.False(t, seen[result.Code], "code %s minted twice", result.Code)
		seen[result.Code] = true
	}
}

func TestRegisterHandleTakenCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	_, err := svc.Register(ctx, &models.Citizen{DisplayName: "First", Handle: "nova"}, "phrase")
	require.NoError(t, err)

	_, err = svc.Register(ctx, &models.Citizen{DisplayName: "Second", Handle: "Nova"}, "phrase")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHandleTaken))
}

func TestRegisterRequiresSecret(t *testing.T) {
	svc, _, _ := newFixture()

	_, err := svc.Register(context.Background(), &models.Citizen{DisplayName: "X"}, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestRegisterFallsBackToLocalWhenRemoteDown(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newFixture()
	remote.SetUnavailable(true)

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Offline"}, "phrase")
	require.NoError(t, err)
	assert.Equal(t, StatusLocalOnly, result.Status)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), result.Code)

	// The account is retrievable through a local-only login while the
	// remote stays down.
	login, err := svc.Login(ctx, result.Code, "phrase")
	require.NoError(t, err)
	assert.Equal(t, StatusLocalOnly, login.Status)
	assert.Equal(t, "Offline", login.Citizen.DisplayName)
}

func TestLoginDistinguishesBadCredentialsFromNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "right")
	require.NoError(t, err)

	_, err = svc.Login(ctx, result.Code, "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadCredentials))

	_, err = svc.Login(ctx, "000000", "whatever")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound))
}

func TestLoginFallsBackToCacheWhenRemoteDown(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	remote.SetUnavailable(true)

	login, err := svc.Login(ctx, result.Code, "phrase")
	require.NoError(t, err)
	assert.Equal(t, StatusLocalOnly, login.Status)

	// Wrong secret against the cached record is still a credential
	// failure, not unavailability.
	_, err = svc.Login(ctx, result.Code, "wrong")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadCredentials))
}

func TestLoginEscalatesWhenRemoteDownAndCacheEmpty(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newFixture()
	remote.SetUnavailable(true)

	_, err := svc.Login(ctx, "123456", "phrase")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeServiceUnavailable))
}

func TestRestoreSessionReturnsActiveSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	restored, err := svc.RestoreSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, result.Code, restored.Citizen.Code)
}

func TestRestoreSessionAbsentPointer(t *testing.T) {
	svc, _, _ := newFixture()

	restored, err := svc.RestoreSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestRestoreSessionClearsPointerOnMismatch(t *testing.T) {
	ctx := context.Background()
	svc, remote, localCache := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	// The secret changed remotely; the retained pointer no longer
	// restores a valid session.
	stored, err := remote.FetchByCode(ctx, result.Code)
	require.NoError(t, err)
	stored.SecretHash = "$2a$10$invalidatedinvalidatedinvalidatedinvalida"
	require.NoError(t, remote.Upsert(ctx, stored))

	restored, err := svc.RestoreSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, restored)

	_, _, ok, err := localCache.SessionPointer(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stale session pointer was not cleared")
}

func TestLogoutClearsPointerOnly(t *testing.T) {
	ctx := context.Background()
	svc, remote, localCache := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx))

	_, _, ok, err := localCache.SessionPointer(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// The record survives logout.
	_, err = remote.FetchByCode(ctx, result.Code)
	assert.NoError(t, err)
}

func TestUpdateProfileAlwaysWritesCache(t *testing.T) {
	ctx := context.Background()
	svc, remote, localCache := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	remote.SetUnavailable(true)

	updated := result.Citizen.Clone()
	updated.Bio = "offline edit"
	status, err := svc.UpdateProfile(ctx, updated)
	require.NoError(t, err)
	assert.Equal(t, StatusLocalOnly, status)

	cached, ok, err := localCache.Get(ctx, result.Code)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "offline edit", cached.Bio)
}

func TestUpdateProfilePreservesSecretHash(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	// UI payloads never carry the hash.
	updated := result.Citizen.Clone()
	updated.SecretHash = ""
	updated.Bio = "new bio"
	_, err = svc.UpdateProfile(ctx, updated)
	require.NoError(t, err)

	stored, err := remote.FetchByCode(ctx, result.Code)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.SecretHash)

	// Login still works after the update.
	_, err = svc.Login(ctx, result.Code, "phrase")
	assert.NoError(t, err)
}

// blockingStore wraps the memory store so a test can hold an upsert open
// and observe the in-flight push fence.
type blockingStore struct {
	*memory.RemoteStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingStore) Upsert(ctx context.Context, citizen *models.Citizen) error {
	block := false
	b.once.Do(func() { block = true })
	if block {
		close(b.entered)
		<-b.release
	}
	return b.RemoteStore.Upsert(ctx, citizen)
}

func TestAllowPushFencesInFlightWrites(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	localCache := cache.NewMemoryStore()

	blocking := &blockingStore{
		RemoteStore: remote,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := NewIdentityService(blocking, localCache)

	citizen := models.Normalize(&models.Citizen{Code: "123456", DisplayName: "Mira"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.UpdateProfile(ctx, citizen)
	}()

	<-blocking.entered
	assert.False(t, svc.AllowPush("123456"), "push allowed while write is un-acked")
	assert.True(t, svc.AllowPush("654321"), "fence leaked onto an unrelated code")

	close(blocking.release)
	<-done
	assert.True(t, svc.AllowPush("123456"), "fence not lifted after ack")
}

// collidingStore wraps the memory store so the first minted code looks
// already taken, forcing a re-roll.
type collidingStore struct {
	*memory.RemoteStore
	mu       sync.Mutex
	lookups  []string
	collided bool
}

func (c *collidingStore) FetchByCode(ctx context.Context, code string) (*models.Citizen, error) {
	c.mu.Lock()
	c.lookups = append(c.lookups, code)
	first := !c.collided
	c.collided = true
	c.mu.Unlock()

	if first {
		return models.Normalize(&models.Citizen{Code: code, DisplayName: "Occupant"}), nil
	}
	return c.RemoteStore.FetchByCode(ctx, code)
}

func TestRegisterRerollsOnCodeCollision(t *testing.T) {
	ctx := context.Background()
	colliding := &collidingStore{RemoteStore: memory.NewRemoteStore()}
	svc := NewIdentityService(colliding, cache.NewMemoryStore())

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)
	assert.Equal(t, StatusSynced, result.Status)

	colliding.mu.Lock()
	lookups := append([]string(nil), colliding.lookups...)
	colliding.mu.Unlock()

	require.GreaterOrEqual(t, len(lookups), 2, "collision did not trigger a second mint lookup")
	assert.NotEqual(t, lookups[0], result.Code, "collided code was reused instead of re-rolled")
}

func TestUpdateProfileFreesOldHandle(t *testing.T) {
	ctx := context.Background()
	svc, remote, _ := newFixture()

	result, err := svc.Register(ctx, &models.Citizen{DisplayName: "Mira", Handle: "nova"}, "phrase")
	require.NoError(t, err)

	renamed := result.Citizen.Clone()
	renamed.Handle = "lumen"
	_, err = svc.UpdateProfile(ctx, renamed)
	require.NoError(t, err)

	code, err := svc.ResolveHandle(ctx, "lumen")
	require.NoError(t, err)
	assert.Equal(t, result.Code, code)

	_, err = svc.ResolveHandle(ctx, "nova")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound))

	// The freed handle is claimable by a new registrant.
	second, err := svc.Register(ctx, &models.Citizen{DisplayName: "Next", Handle: "nova"}, "phrase")
	require.NoError(t, err)

	code, err = remote.FetchByHandle(ctx, "nova")
	require.NoError(t, err)
	assert.Equal(t, second.Code, code)
}
