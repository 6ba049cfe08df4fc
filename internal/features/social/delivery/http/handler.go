package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/middleware"
	"mooderia-backend/internal/features/social/service"
)

type SocialHandler struct {
	service service.SocialService
}

func NewSocialHandler(svc service.SocialService) *SocialHandler {
	return &SocialHandler{service: svc}
}

func (h *SocialHandler) RegisterRoutes(router *gin.RouterGroup) {
	friends := router.Group("/friends")
	{
		friends.POST("/requests", h.sendRequest)
		friends.POST("/respond", h.respond)
		friends.GET("/:code", h.overview)
	}

	router.POST("/messages", h.sendMessage)

	mailbox := router.Group("/mailbox")
	{
		mailbox.GET("/:code", h.mailbox)
		mailbox.POST("/:code/read", h.markRead)
	}
}

type friendRequestPayload struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

func (h *SocialHandler) sendRequest(c *gin.Context) {
	var req friendRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid friend request payload"))
		return
	}

	if err := h.service.SendFriendRequest(c.Request.Context(), req.From, req.To); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type respondPayload struct {
	Code   string `json:"code" binding:"required"`
	From   string `json:"from" binding:"required"`
	Accept bool   `json:"accept"`
}

func (h *SocialHandler) respond(c *gin.Context) {
	var req respondPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid respond payload"))
		return
	}

	if err := h.service.RespondToFriendRequest(c.Request.Context(), req.Code, req.From, req.Accept); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "accepted": req.Accept})
}

func (h *SocialHandler) overview(c *gin.Context) {
	overview, err := h.service.FriendsOverview(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

type messagePayload struct {
	Sender    string `json:"sender" binding:"required"`
	Recipient string `json:"recipient" binding:"required"`
	Text      string `json:"text" binding:"required"`
}

func (h *SocialHandler) sendMessage(c *gin.Context) {
	var req messagePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid message payload"))
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), req.Sender, req.Recipient, req.Text)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

func (h *SocialHandler) mailbox(c *gin.Context) {
	messages, err := h.service.Mailbox(c.Request.Context(), c.Param("code"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *SocialHandler) markRead(c *gin.Context) {
	if err := h.service.MarkMessagesRead(c.Request.Context(), c.Param("code")); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
