package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"

	// Ошибки гивов
	ErrCodeGiveawayNotFound  ErrorCode = "GIVEAWAY_NOT_FOUND"
	ErrCodeGiveawayNotActive ErrorCode = "GIVEAWAY_NOT_ACTIVE"
	ErrCodeGiveawayExpired   ErrorCode = "GIVEAWAY_EXPIRED"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeConditionLocked   ErrorCode = "CONDITION_LOCKED"

	// Ошибки участия
	ErrCodeAlreadyJoined          ErrorCode = "ALREADY_JOINED"
	ErrCodeParticipationNotFound  ErrorCode = "PARTICIPATION_NOT_FOUND"
	ErrCodeSubscriptionRequired   ErrorCode = "SUBSCRIPTION_REQUIRED"
	ErrCodeCaptchaRequired        ErrorCode = "CAPTCHA_REQUIRED"
	ErrCodeCaptchaInvalid         ErrorCode = "CAPTCHA_INVALID"
	ErrCodeCaptchaTooManyAttempts ErrorCode = "CAPTCHA_TOO_MANY_ATTEMPTS"

	// Бусты, сторис, задания
	ErrCodeChannelNotConfigured ErrorCode = "CHANNEL_NOT_CONFIGURED"
	ErrCodeBoostsDisabled       ErrorCode = "BOOSTS_DISABLED"
	ErrCodeStoriesDisabled      ErrorCode = "STORIES_DISABLED"
	ErrCodeStoryNotFound        ErrorCode = "STORY_NOT_FOUND"
	ErrCodeStoryAlreadyApproved ErrorCode = "STORY_ALREADY_APPROVED"
	ErrCodeStoryAlreadyPending  ErrorCode = "STORY_ALREADY_PENDING"
	ErrCodeStoryNotPending      ErrorCode = "STORY_NOT_PENDING"
	ErrCodeTaskNotFound         ErrorCode = "TASK_NOT_FOUND"
	ErrCodeTaskAlreadyCompleted ErrorCode = "TASK_ALREADY_COMPLETED"

	// Инфраструктура
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	ErrCodeCacheError    ErrorCode = "CACHE_ERROR"
	ErrCodeExternalAPI   ErrorCode = "EXTERNAL_API_ERROR"
)

// AppError представляет типизированную ошибку приложения
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Stack     []string               `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error возвращает строковое представление ошибки
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap возвращает причину ошибки
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so errors.Is works against
// the package constructors without comparing pointers.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// IsInternal проверяет, является ли ошибка внутренней ошибкой
func (e *AppError) IsInternal() bool {
	switch e.Code {
	case ErrCodeInternal, ErrCodeDatabaseError, ErrCodeCacheError:
		return true
	}
	return false
}

// WithDetail добавляет детальную информацию к ошибке
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithStack добавляет стек вызовов к ошибке
func (e *AppError) WithStack() *AppError {
	e.Stack = getStackTrace()
	return e
}

// New создает новую ошибку приложения
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// Wrap оборачивает существующую ошибку
func Wrap(err error, code ErrorCode, message string) *AppError {
	appErr := New(code, message).WithStack()
	appErr.Cause = err
	return appErr
}

// Wrapf оборачивает существующую ошибку с форматированием
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// getStackTrace возвращает стек вызовов
func getStackTrace() []string {
	var stack []string
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		if strings.Contains(fn.Name(), "internal/common/errors") {
			continue
		}
		stack = append(stack, fmt.Sprintf("%s:%d %s", file, line, fn.Name()))
		if len(stack) >= 10 {
			break
		}
	}
	return stack
}

// Конструкторы для часто используемых ошибок

// NewValidationError создает ошибку валидации
func NewValidationError(field, reason string) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf("Validation failed for field '%s': %s", field, reason)).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

// NewGiveawayNotFoundError создает ошибку "гив не найден"
func NewGiveawayNotFoundError(giveawayID string) *AppError {
	return New(ErrCodeGiveawayNotFound, fmt.Sprintf("Giveaway not found: %s", giveawayID)).
		WithDetail("giveaway_id", giveawayID)
}

// NewParticipationNotFoundError создает ошибку "участие не найдено"
func NewParticipationNotFoundError(giveawayID string, userID int64) *AppError {
	return New(ErrCodeParticipationNotFound, "User has not joined this giveaway").
		WithDetail("giveaway_id", giveawayID).
		WithDetail("user_id", userID)
}

// NewForbiddenError создает ошибку доступа
func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeForbidden, fmt.Sprintf("Forbidden: %s", reason)).
		WithDetail("reason", reason)
}

// NewUnauthorizedError создает ошибку авторизации
func NewUnauthorizedError(reason string) *AppError {
	return New(ErrCodeUnauthorized, fmt.Sprintf("Unauthorized: %s", reason)).
		WithDetail("reason", reason)
}

// NewDatabaseError создает ошибку базы данных
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseError, fmt.Sprintf("Database operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewCacheError создает ошибку кэша
func NewCacheError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeCacheError, fmt.Sprintf("Cache operation failed: %s", operation)).
		WithDetail("operation", operation)
}

// NewRateLimitError создает ошибку превышения лимита запросов.
// retry_after_seconds is rounded up so clients never retry too early.
func NewRateLimitError(service string, retryAfter time.Duration) *AppError {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return New(ErrCodeTooManyRequests, fmt.Sprintf("Rate limit exceeded for %s", service)).
		WithDetail("service", service).
		WithDetail("retry_after_seconds", secs)
}

// NewInvalidTransitionError reports a lifecycle move that is not allowed from the current status.
func NewInvalidTransitionError(from, to string) *AppError {
	return New(ErrCodeInvalidTransition, fmt.Sprintf("Cannot move giveaway from %s to %s", from, to)).
		WithDetail("from", from).
		WithDetail("to", to)
}

// AsAppError приводит ошибку к AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if err == nil {
		return nil, false
	}
	ok := stderrors.As(err, &appErr)
	return appErr, ok
}

// CodeOf returns the code of the first AppError in err's chain, or an empty code.
func CodeOf(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// RetryAfterSeconds extracts the retry hint from a rate limit error.
func RetryAfterSeconds(err error) (int, bool) {
	appErr, ok := AsAppError(err)
	if !ok || appErr.Code != ErrCodeTooManyRequests {
		return 0, false
	}
	v, ok := appErr.Details["retry_after_seconds"].(int)
	return v, ok
}
