package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/open-builders/giveaway-tickets/docs"
	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/service/boost"
	"github.com/open-builders/giveaway-tickets/internal/service/captcha"
	giveawaysvc "github.com/open-builders/giveaway-tickets/internal/service/giveaway"
	"github.com/open-builders/giveaway-tickets/internal/service/participation"
	"github.com/open-builders/giveaway-tickets/internal/service/story"
	"github.com/open-builders/giveaway-tickets/internal/service/task"
)

// Services are the application services exposed over HTTP.
type Services struct {
	Giveaways *giveawaysvc.Service
	Ledger    *participation.Ledger
	Boosts    *boost.Verifier
	Stories   *story.Workflow
	Tasks     *task.Service
	Captcha   *captcha.Service
}

// RouterConfig controls the transport concerns of the router.
type RouterConfig struct {
	Debug          bool
	AllowedOrigins []string
	// Auth resolves the caller on /api/v1. Usually mw.InitData.
	Auth gin.HandlerFunc
	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error
}

// NewRouter builds the gin engine with every route wired.
func NewRouter(cfg RouterConfig, svc Services) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(mw.RequestID(), mw.Logger(), mw.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", mw.InitDataHeader, mw.RequestIDHeader}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsCfg.ExposeHeaders = []string{mw.RequestIDHeader, "Retry-After"}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	if cfg.Auth != nil {
		v1.Use(cfg.Auth)
	}
	NewGiveawayHandlers(svc.Giveaways, svc.Tasks).RegisterRoutes(v1)
	NewParticipationHandlers(svc.Ledger, svc.Captcha, svc.Boosts, svc.Tasks).RegisterRoutes(v1)
	NewStoryHandlers(svc.Stories).RegisterRoutes(v1)
	NewCaptchaHandlers(svc.Captcha).RegisterRoutes(v1)

	return r
}

// currentUser returns the authenticated user or aborts with 401.
func currentUser(c *gin.Context) (int64, bool) {
	userID, ok := mw.UserID(c)
	if !ok {
		mw.Error(c, apperrors.NewUnauthorizedError("user is not authenticated"))
		return 0, false
	}
	return userID, true
}

// pathID returns the named path parameter or aborts with 400 when it is not a UUID.
func pathID(c *gin.Context, name string) (string, bool) {
	raw := c.Param(name)
	if _, err := uuid.Parse(raw); err != nil {
		mw.Error(c, apperrors.NewValidationError(name, "must be a UUID"))
		return "", false
	}
	return raw, true
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		mw.Error(c, apperrors.NewValidationError("body", err.Error()))
		return false
	}
	return true
}
