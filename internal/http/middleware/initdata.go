package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
)

// Context keys for the authenticated Telegram user.
const (
	UserIDCtxParam    = "user_id"
	IsPremiumCtxParam = "is_premium"
	UsernameCtxParam  = "username"
)

const InitDataHeader = "X-Telegram-Init-Data"

// InitData validates Telegram Mini Apps init-data and stores the user in context.
// It reads the X-Telegram-Init-Data header first and falls back to the init_data query.
// expIn == 0 disables the age check.
func InitData(token string, expIn time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			Error(c, apperrors.New(apperrors.ErrCodeInternal, "init-data validation is not configured"))
			return
		}

		raw := c.GetHeader(InitDataHeader)
		if raw == "" {
			raw = c.Query("init_data")
		}
		if raw == "" {
			Error(c, apperrors.NewUnauthorizedError("missing init_data"))
			return
		}

		if err := initdata.Validate(raw, token, expIn); err != nil {
			Error(c, apperrors.NewUnauthorizedError("invalid init_data"))
			return
		}
		parsed, err := initdata.Parse(raw)
		if err != nil {
			Error(c, apperrors.NewValidationError("init_data", "invalid format"))
			return
		}
		if parsed.User.ID == 0 {
			Error(c, apperrors.NewUnauthorizedError("init_data carries no user"))
			return
		}

		SetUser(c, parsed.User.ID, parsed.User.IsPremium)
		c.Set(UsernameCtxParam, parsed.User.Username)
		c.Next()
	}
}

// SetUser records the authenticated user on the request.
func SetUser(c *gin.Context, userID int64, isPremium bool) {
	c.Set(UserIDCtxParam, userID)
	c.Set(IsPremiumCtxParam, isPremium)
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(UserIDCtxParam)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id != 0
}

func IsPremium(c *gin.Context) bool {
	return c.GetBool(IsPremiumCtxParam)
}
