package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool                `json:"success"`
	Error     *apperrors.AppError `json:"error"`
	Timestamp time.Time           `json:"timestamp"`
	RequestID string              `json:"request_id"`
	Path      string              `json:"path,omitempty"`
	Method    string              `json:"method,omitempty"`
}

// Recovery turns panics into a 500 with the standard error body.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Str("stack", string(debug.Stack())).
			Msg("Panic recovered")

		Error(c, apperrors.New(apperrors.ErrCodeInternal, "Internal server error"))
	})
}

// Error aborts the request with err mapped to its HTTP status.
// Errors that are not AppErrors are reported as internal.
func Error(c *gin.Context, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrCodeInternal, "Internal server error")
	}

	status := StatusCode(appErr.Code)
	if secs, ok := apperrors.RetryAfterSeconds(appErr); ok {
		c.Header("Retry-After", strconv.Itoa(secs))
	}
	logError(c, appErr, status)

	c.AbortWithStatusJSON(status, ErrorResponse{
		Success:   false,
		Error:     appErr,
		Timestamp: time.Now(),
		RequestID: RequestIDFrom(c),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	})
}

// StatusCode maps an error code to the HTTP status returned to clients.
func StatusCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound,
		apperrors.ErrCodeGiveawayNotFound,
		apperrors.ErrCodeParticipationNotFound,
		apperrors.ErrCodeStoryNotFound,
		apperrors.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeAlreadyJoined,
		apperrors.ErrCodeGiveawayNotActive,
		apperrors.ErrCodeInvalidTransition,
		apperrors.ErrCodeConditionLocked,
		apperrors.ErrCodeStoryAlreadyApproved,
		apperrors.ErrCodeStoryAlreadyPending,
		apperrors.ErrCodeStoryNotPending,
		apperrors.ErrCodeTaskAlreadyCompleted:
		return http.StatusConflict
	case apperrors.ErrCodeGiveawayExpired:
		return http.StatusGone
	case apperrors.ErrCodeSubscriptionRequired,
		apperrors.ErrCodeCaptchaRequired,
		apperrors.ErrCodeCaptchaInvalid,
		apperrors.ErrCodeCaptchaTooManyAttempts,
		apperrors.ErrCodeChannelNotConfigured,
		apperrors.ErrCodeBoostsDisabled,
		apperrors.ErrCodeStoriesDisabled:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeCacheError:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeExternalAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func logError(c *gin.Context, appErr *apperrors.AppError, status int) {
	event := logger.Debug()
	switch {
	case appErr.IsInternal() || status >= http.StatusInternalServerError:
		event = logger.Error()
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		event = logger.Warn()
	}

	event = event.
		Str("request_id", RequestIDFrom(c)).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Str("error_code", string(appErr.Code)).
		Str("error_message", appErr.Message).
		Int("status", status)
	if userID, ok := UserID(c); ok {
		event = event.Int64("user_id", userID)
	}
	if len(appErr.Details) > 0 {
		event = event.Interface("details", appErr.Details)
	}
	if appErr.Cause != nil {
		event = event.Err(appErr.Cause)
	}
	event.Msg(fmt.Sprintf("Request failed: %s", appErr.Code))
}
