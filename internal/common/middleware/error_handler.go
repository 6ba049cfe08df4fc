package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "mooderia-backend/internal/common/errors"
	"mooderia-backend/internal/common/logger"
)

// RequestID attaches a request id to every request, generating one when the
// client did not supply it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// Recovery converts panics into a logged internal-error response.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error().
			Str("request_id", getRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("panic", fmt.Sprintf("%v", recovered)).
			Str("stack", string(debug.Stack())).
			Msg("panic recovered")

		RespondError(c, apperrors.New(apperrors.ErrCodeInternal, "internal server error"))
	})
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Success   bool                `json:"success"`
	Error     *apperrors.AppError `json:"error"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"request_id"`
}

// RespondError maps an application error to an HTTP response.
func RespondError(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeInternal, "internal server error")
	}

	logEvent := logger.Warn()
	if appErr.Code == apperrors.ErrCodeInternal {
		logEvent = logger.Error()
	}
	logEvent.
		Str("request_id", getRequestID(c)).
		Str("path", c.Request.URL.Path).
		Str("code", string(appErr.Code)).
		Msg(appErr.Message)

	c.AbortWithStatusJSON(HTTPStatus(appErr.Code), ErrorResponse{
		Success:   false,
		Error:     appErr,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// HTTPStatus maps an error code to an HTTP status.
func HTTPStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeIdentityNotFound, apperrors.ErrCodeTargetNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeBadCredentials:
		return http.StatusUnauthorized
	case apperrors.ErrCodeHandleTaken, apperrors.ErrCodeAlreadyFriends, apperrors.ErrCodeAlreadyPending:
		return http.StatusConflict
	case apperrors.ErrCodeCorruptPassport, apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeRemoteUnavailable, apperrors.ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodePartialGraphWrite:
		return http.StatusBadGateway
	case apperrors.ErrCodeOracle:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
