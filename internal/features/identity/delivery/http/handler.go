package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
	"mooderia-backend/internal/common/middleware"
	"mooderia-backend/internal/features/citizen/models"
	"mooderia-backend/internal/features/identity/service"
	"mooderia-backend/internal/features/passport"
	"mooderia-backend/internal/features/subscription"
)

type IdentityHandler struct {
	service service.IdentityService
	sync    *subscription.Manager
}

func NewIdentityHandler(svc service.IdentityService, sync *subscription.Manager) *IdentityHandler {
	return &IdentityHandler{service: svc, sync: sync}
}

func (h *IdentityHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := router.Group("/auth")
	{
		auth.POST("/register", h.register)
		auth.POST("/login", h.login)
		auth.POST("/restore", h.restore)
		auth.POST("/logout", h.logout)
	}

	router.PUT("/profile", h.updateProfile)
	router.GET("/handles/:handle", h.resolveHandle)
	router.GET("/passport", h.exportPassport)
	router.POST("/passport/import", h.importPassport)
}

func (h *IdentityHandler) resolveHandle(c *gin.Context) {
	code, err := h.service.ResolveHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"handle": c.Param("handle"), "code": code})
}

type registerRequest struct {
	DisplayName string `json:"displayName" binding:"required"`
	Handle      string `json:"handle"`
	Country     string `json:"country"`
	Secret      string `json:"secret" binding:"required"`
}

type authResponse struct {
	Success bool                    `json:"success"`
	Code    string                  `json:"code,omitempty"`
	Status  service.SyncStatus      `json:"status"`
	Citizen *models.CitizenResponse `json:"citizen,omitempty"`
}

func (h *IdentityHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid register payload"))
		return
	}

	profile := &models.Citizen{
		DisplayName: req.DisplayName,
		Handle:      req.Handle,
		Country:     req.Country,
	}

	result, err := h.service.Register(c.Request.Context(), profile, req.Secret)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.attach(c, result.Code)
	c.JSON(http.StatusCreated, authResponse{
		Success: true,
		Code:    result.Code,
		Status:  result.Status,
		Citizen: models.ToResponse(result.Citizen),
	})
}

type loginRequest struct {
	Code   string `json:"code" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

func (h *IdentityHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid login payload"))
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Code, req.Secret)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.attach(c, req.Code)
	c.JSON(http.StatusOK, authResponse{
		Success: true,
		Code:    req.Code,
		Status:  result.Status,
		Citizen: models.ToResponse(result.Citizen),
	})
}

func (h *IdentityHandler) restore(c *gin.Context) {
	result, err := h.service.RestoreSession(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}

	h.attach(c, result.Citizen.Code)
	c.JSON(http.StatusOK, authResponse{
		Success: true,
		Code:    result.Citizen.Code,
		Status:  result.Status,
		Citizen: models.ToResponse(result.Citizen),
	})
}

func (h *IdentityHandler) logout(c *gin.Context) {
	h.sync.Detach()
	if err := h.service.Logout(c.Request.Context()); err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *IdentityHandler) updateProfile(c *gin.Context) {
	var citizen models.Citizen
	if err := c.ShouldBindJSON(&citizen); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid profile payload"))
		return
	}
	// Secrets never enter through this route.
	citizen.SecretHash = ""

	status, err := h.service.UpdateProfile(c.Request.Context(), &citizen)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
}

func (h *IdentityHandler) exportPassport(c *gin.Context) {
	// The passport is minted from the active session pointer, so only the
	// logged-in device can export its own credentials.
	result, err := h.service.RestoreSession(c.Request.Context())
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if result == nil {
		middleware.RespondError(c, apperrors.New(apperrors.ErrCodeBadCredentials, "no active session"))
		return
	}

	code, secret, ok, err := h.service.SessionCredentials(c.Request.Context())
	if err != nil || !ok {
		middleware.RespondError(c, apperrors.New(apperrors.ErrCodeBadCredentials, "no active session"))
		return
	}

	blob, err := passport.Export(code, secret)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "passport": blob})
}

type importRequest struct {
	Passport string `json:"passport" binding:"required"`
}

func (h *IdentityHandler) importPassport(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid passport payload"))
		return
	}

	creds, err := passport.Import(req.Passport)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	// The recovered pair re-enters through the normal login path; import
	// never bypasses credential verification.
	result, err := h.service.Login(c.Request.Context(), creds.Code, creds.Phrase)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.attach(c, creds.Code)
	c.JSON(http.StatusOK, authResponse{
		Success: true,
		Code:    creds.Code,
		Status:  result.Status,
		Citizen: models.ToResponse(result.Citizen),
	})
}

// attach re-points the live listeners at the session that just logged in.
// Listeners outlive the request, so they are not bound to its context.
// Push attachment failures leave the session degraded but usable.
func (h *IdentityHandler) attach(_ *gin.Context, code string) {
	if err := h.sync.Attach(context.Background(), code, nil, nil); err != nil {
		logger.Warn().Str("code", code).Err(err).Msg("push listeners not attached, session continues without live sync")
	}
}
