package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mooderia-backend/internal/common/middleware"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/citizen/repository"
)

// DirectoryHandler exposes the read-only citizen directory: lookup, prefix
// search and listing.
type DirectoryHandler struct {
	remote repository.RemoteStore
}

func NewDirectoryHandler(remote repository.RemoteStore) *DirectoryHandler {
	return &DirectoryHandler{remote: remote}
}

func (h *DirectoryHandler) RegisterRoutes(router *gin.RouterGroup) {
	citizens := router.Group("/citizens")
	{
		citizens.GET("", h.list)
		citizens.GET("/search", h.search)
		citizens.GET("/:code", h.get)
	}
}

func (h *DirectoryHandler) get(c *gin.Context) {
	citizen, err := h.remote.FetchByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ToResponse(citizen))
}

func (h *DirectoryHandler) search(c *gin.Context) {
	citizens, err := h.remote.Search(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"citizens": toResponses(citizens)})
}

func (h *DirectoryHandler) list(c *gin.Context) {
	citizens, err := h.remote.List(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"citizens": toResponses(citizens)})
}

func toResponses(citizens []*models.Citizen) []*models.CitizenResponse {
	out := make([]*models.CitizenResponse, 0, len(citizens))
	for _, citizen := range citizens {
		out = append(out, models.ToResponse(citizen))
	}
	return out
}
