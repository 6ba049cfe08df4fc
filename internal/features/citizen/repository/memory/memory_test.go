package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/features/citizen/models"
)

func TestHandleClaimIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	first := models.Normalize(&models.Citizen{Code: "111111", Handle: "nova"})
	require.NoError(t, store.Upsert(ctx, first))

	second := models.Normalize(&models.Citizen{Code: "222222", Handle: "Nova"})
	err := store.Upsert(ctx, second)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeHandleTaken))

	// The original owner may keep re-upserting its own handle.
	require.NoError(t, store.Upsert(ctx, first))
}

func TestFetchOutcomeTaxonomy(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	_, err := store.FetchByCode(ctx, "000000")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound))

	store.SetUnavailable(true)
	_, err = store.FetchByCode(ctx, "000000")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRemoteUnavailable))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111"})))

	pushes := 0
	unsubscribe, err := store.Subscribe(ctx, "111111", func(*models.Citizen) { pushes++ })
	require.NoError(t, err)

	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111", Bio: "x"})))
	assert.Equal(t, 1, pushes)

	unsubscribe()

	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111", Bio: "y"})))
	assert.Equal(t, 1, pushes, "callback fired after unsubscribe")
}

func TestSearchByPrefix(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	for _, code := range []string{"111111", "112222", "333333"} {
		require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: code})))
	}

	matches, err := store.Search(ctx, "11")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "111111", matches[0].Code)
	assert.Equal(t, "112222", matches[1].Code)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestHandleReleasedWhenRecordChangesIt(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111", Handle: "nova"})))
	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111", Handle: "lumen"})))

	code, err := store.FetchByHandle(ctx, "lumen")
	require.NoError(t, err)
	assert.Equal(t, "111111", code)

	_, err = store.FetchByHandle(ctx, "nova")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIdentityNotFound))

	// The freed handle is claimable by another record.
	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "222222", Handle: "nova"})))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewRemoteStore()

	require.NoError(t, store.Upsert(ctx, models.Normalize(&models.Citizen{Code: "111111"})))

	unsubscribe, err := store.Subscribe(ctx, "111111", func(*models.Citizen) {})
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		unsubscribe()
		unsubscribe()
	})
}
