package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mooderia-backend/internal/features/citizen/cache"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository/memory"
	"mooderia-backend/internal/features/identity/service"
	"mooderia-backend/internal/features/subscription"
)

func newRouter(t *testing.T) (*gin.Engine, service.IdentityService, *memory.RemoteStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	remote := memory.NewRemoteStore()
	localCache := cache.NewMemoryStore()
	svc := service.NewIdentityService(remote, localCache)
	manager := subscription.NewManager(remote, localCache, svc)
	t.Cleanup(manager.Detach)

	router := gin.New()
	NewIdentityHandler(svc, manager).RegisterRoutes(router.Group("/api/v1"))
	return router, svc, remote
}

func TestLoginSucceedsWhenListenerAttachFails(t *testing.T) {
	router, svc, remote := newRouter(t)

	result, err := svc.Register(context.Background(), &models.Citizen{DisplayName: "Mira"}, "phrase")
	require.NoError(t, err)

	// The remote goes down: login falls back to the cache and listener
	// attachment fails. The session must still open.
	remote.SetUnavailable(true)

	body, err := json.Marshal(map[string]string{"code": result.Code, "secret": "phrase"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, string(service.StatusLocalOnly), resp.Status)
}
