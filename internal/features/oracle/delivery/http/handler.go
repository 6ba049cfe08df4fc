package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/middleware"
	"mooderia-backend/internal/features/oracle"
)

type OracleHandler struct {
	client *oracle.Client
}

func NewOracleHandler(client *oracle.Client) *OracleHandler {
	return &OracleHandler{client: client}
}

func (h *OracleHandler) RegisterRoutes(router *gin.RouterGroup) {
	oracle := router.Group("/oracle")
	{
		oracle.GET("/horoscope/:sign", h.horoscope)
		oracle.GET("/love/:first/:second", h.lovePrediction)
		oracle.POST("/safety", h.contentSafety)
	}
}

func (h *OracleHandler) horoscope(c *gin.Context) {
	text, err := h.client.DailyHoroscope(c.Request.Context(), c.Param("sign"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sign": c.Param("sign"), "text": text})
}

func (h *OracleHandler) lovePrediction(c *gin.Context) {
	verdict, err := h.client.LovePrediction(c.Request.Context(), c.Param("first"), c.Param("second"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}

type safetyPayload struct {
	Text string `json:"text" binding:"required"`
}

func (h *OracleHandler) contentSafety(c *gin.Context) {
	var req safetyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid safety payload"))
		return
	}

	verdict, err := h.client.ContentSafety(c.Request.Context(), req.Text)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}
