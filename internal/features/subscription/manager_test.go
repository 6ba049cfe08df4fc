package subscription

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository/memory"
)

type stubGate struct{ blocked map[string]bool }

func (g *stubGate) AllowPush(code string) bool { return !g.blocked[code] }

func seed(t *testing.T, remote *memory.RemoteStore, code string) {
	t.Helper()
	citizen := models.Normalize(&models.Citizen{Code: code, DisplayName: "Citizen " + code})
	require.NoError(t, remote.Upsert(context.Background(), citizen))
}

func TestAttachDeliversNormalizedProfilePushes(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	localCache := cache.NewMemoryStore()
	manager := NewManager(remote, localCache, nil)
	defer manager.Detach()

	seed(t, remote, "111111")

	var pushed []*models.Citizen
	require.NoError(t, manager.Attach(ctx, "111111", func(c *models.Citizen) {
		pushed = append(pushed, c)
	}, nil))

	// Partial record arriving from outside: collections absent.
	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "111111", DisplayName: "Renamed"}))

	require.Len(t, pushed, 1)
	assert.Equal(t, "Renamed", pushed[0].DisplayName)
	assert.NotNil(t, pushed[0].Friends, "push was not normalized")

	// The push was mirrored into the local cache too.
	cached, ok, err := localCache.Get(ctx, "111111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Renamed", cached.DisplayName)
}

func TestDetachStopsDelivery(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	manager := NewManager(remote, cache.NewMemoryStore(), nil)

	seed(t, remote, "111111")

	pushes := 0
	require.NoError(t, manager.Attach(ctx, "111111", func(*models.Citizen) { pushes++ }, nil))

	manager.Detach()

	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "111111", DisplayName: "After"}))
	assert.Zero(t, pushes, "callback fired after detach")
	assert.Empty(t, manager.Active())
}

func TestAccountSwitchTearsDownPriorListeners(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	manager := NewManager(remote, cache.NewMemoryStore(), nil)
	defer manager.Detach()

	seed(t, remote, "111111")
	seed(t, remote, "222222")

	firstPushes := 0
	require.NoError(t, manager.Attach(ctx, "111111", func(*models.Citizen) { firstPushes++ }, nil))

	secondPushes := 0
	require.NoError(t, manager.Attach(ctx, "222222", func(*models.Citizen) { secondPushes++ }, nil))
	assert.Equal(t, "222222", manager.Active())

	// A push for the first account must not reach its stale listener.
	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "111111", DisplayName: "Stale"}))
	assert.Zero(t, firstPushes, "stale account received a push after switch")

	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "222222", DisplayName: "Live"}))
	assert.Equal(t, 1, secondPushes)
}

func TestGateDropsPushesForInFlightWrites(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	localCache := cache.NewMemoryStore()
	gate := &stubGate{blocked: map[string]bool{"111111": true}}
	manager := NewManager(remote, localCache, gate)
	defer manager.Detach()

	seed(t, remote, "111111")

	pushes := 0
	require.NoError(t, manager.Attach(ctx, "111111", func(*models.Citizen) { pushes++ }, nil))

	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "111111", DisplayName: "Blocked"}))
	assert.Zero(t, pushes, "gated push was applied")

	gate.blocked["111111"] = false
	require.NoError(t, remote.Upsert(ctx, &models.Citizen{Code: "111111", DisplayName: "Allowed"}))
	assert.Equal(t, 1, pushes)
}

func TestMailboxPushesArriveNewestFirst(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewRemoteStore()
	manager := NewManager(remote, cache.NewMemoryStore(), nil)
	defer manager.Detach()

	seed(t, remote, "222222")

	var last []models.Message
	require.NoError(t, manager.Attach(ctx, "222222", nil, func(messages []models.Message) {
		last = messages
	}))

	require.NoError(t, remote.AppendMailbox(ctx, models.Message{
		ID: "a", Sender: "111111", Recipient: "222222", Text: "old", Timestamp: 100,
	}))
	require.NoError(t, remote.AppendMailbox(ctx, models.Message{
		ID: "b", Sender: "111111", Recipient: "222222", Text: "new", Timestamp: 200,
	}))

	require.Len(t, last, 2)
	assert.Equal(t, "new", last[0].Text)
	assert.Equal(t, "old", last[1].Text)
}
