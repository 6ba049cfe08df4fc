package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeFillsAbsentCollections(t *testing.T) {
	citizen := &Citizen{Code: "123456", DisplayName: "Mira"}

	Normalize(citizen)

	assert.NotNil(t, citizen.MoodHistory)
	assert.NotNil(t, citizen.DiaryEntries)
	assert.NotNil(t, citizen.Schedule)
	assert.NotNil(t, citizen.Routines)
	assert.NotNil(t, citizen.Friends)
	assert.NotNil(t, citizen.FriendRequests)
	assert.NotNil(t, citizen.Following)
	assert.NotNil(t, citizen.Followers)
	assert.Equal(t, []string{DefaultBackground}, citizen.UnlockedBackgrounds)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	citizen := &Citizen{
		Code:                "123456",
		Friends:             []string{"654321"},
		UnlockedBackgrounds: []string{"default", "ocean"},
	}

	once := Normalize(citizen.Clone())
	twice := Normalize(Normalize(citizen.Clone()))

	assert.Equal(t, once, twice)
}

func TestNormalizePreservesExistingData(t *testing.T) {
	citizen := &Citizen{
		Code:           "123456",
		Friends:        []string{"111111", "222222"},
		FriendRequests: []string{"333333"},
	}

	Normalize(citizen)

	assert.Equal(t, []string{"111111", "222222"}, citizen.Friends)
	assert.Equal(t, []string{"333333"}, citizen.FriendRequests)
}

func TestNormalizedRecordSerializesCollectionsAsArrays(t *testing.T) {
	raw, err := json.Marshal(Normalize(&Citizen{Code: "123456"}))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	for _, field := range []string{
		"moodHistory", "diaryEntries", "schedule", "routines",
		"friends", "friendRequests", "following", "followers",
		"unlockedBackgrounds",
	} {
		value, present := decoded[field]
		require.True(t, present, "field %s missing", field)
		_, isArray := value.([]interface{})
		assert.True(t, isArray, "field %s is not an array: %v", field, value)
	}
}

func TestNormalizeNil(t *testing.T) {
	assert.Nil(t, Normalize(nil))
}

func TestCloneDoesNotShareSlices(t *testing.T) {
	original := Normalize(&Citizen{Code: "123456", Friends: []string{"111111"}})
	clone := original.Clone()

	clone.Friends[0] = "999999"
	clone.Friends = append(clone.Friends, "888888")

	assert.Equal(t, []string{"111111"}, original.Friends)
}

func TestToResponseStripsSecretHash(t *testing.T) {
	citizen := &Citizen{Code: "123456", SecretHash: "$2a$10$abcdef"}

	raw, err := json.Marshal(ToResponse(citizen))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secretHash")
	assert.NotContains(t, string(raw), "$2a$10$abcdef")
}
