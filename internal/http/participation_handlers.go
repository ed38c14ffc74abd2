package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/service/boost"
	"github.com/open-builders/giveaway-tickets/internal/service/captcha"
	"github.com/open-builders/giveaway-tickets/internal/service/participation"
	"github.com/open-builders/giveaway-tickets/internal/service/task"
)

// ParticipationHandlers serves the participant side: joining and earning tickets.
type ParticipationHandlers struct {
	ledger  *participation.Ledger
	captcha *captcha.Service
	boosts  *boost.Verifier
	tasks   *task.Service
}

func NewParticipationHandlers(ledger *participation.Ledger, captcha *captcha.Service, boosts *boost.Verifier, tasks *task.Service) *ParticipationHandlers {
	return &ParticipationHandlers{ledger: ledger, captcha: captcha, boosts: boosts, tasks: tasks}
}

func (h *ParticipationHandlers) RegisterRoutes(router *gin.RouterGroup) {
	giveaways := router.Group("/giveaways")
	{
		giveaways.POST("/:id/join", h.join)
		giveaways.GET("/:id/participation", h.get)
		giveaways.POST("/:id/boosts/verify", h.verifyBoost)
		giveaways.POST("/:id/tasks/:task_id/complete", h.completeTask)
	}
}

// JoinRequest is the body of a join call.
type JoinRequest struct {
	CaptchaPassed  bool   `json:"captcha_passed"`
	ReferrerUserID *int64 `json:"referrer_user_id,omitempty"`
	SourceTag      string `json:"source_tag,omitempty"`
}

// @Summary Join a giveaway
// @Description captcha_passed is honored only after a successful captcha verify by the same user.
// @Tags participation
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param input body JoinRequest false "Join options"
// @Success 201 {object} participation.JoinResult
// @Failure 409 {object} middleware.ErrorResponse "ALREADY_JOINED"
// @Failure 422 {object} middleware.ErrorResponse "SUBSCRIPTION_REQUIRED or CAPTCHA_REQUIRED"
// @Router /giveaways/{id}/join [post]
func (h *ParticipationHandlers) join(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req JoinRequest
	if !bindJSON(c, &req) {
		return
	}

	giveawayID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var pass *captcha.Pass
	if req.CaptchaPassed {
		var err error
		if pass, err = h.captcha.ClaimPass(ctx, userID); err != nil {
			mw.Error(c, err)
			return
		}
	}

	res, err := h.ledger.Join(ctx, giveawayID, participation.JoinInput{
		UserID:         userID,
		IsPremium:      mw.IsPremium(c),
		CaptchaPassed:  pass != nil,
		ReferrerUserID: req.ReferrerUserID,
		SourceTag:      req.SourceTag,
	})
	// A pass the join did not spend goes back for the next attempt.
	if pass != nil && (err != nil || !res.CaptchaRequired) {
		if rerr := h.captcha.RestorePass(ctx, pass); rerr != nil {
			logger.Warn().Err(rerr).Int64("user_id", userID).Msg("failed to restore captcha pass")
		}
	}
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary Get my participation
// @Tags participation
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} participation.View
// @Failure 404 {object} middleware.ErrorResponse
// @Router /giveaways/{id}/participation [get]
func (h *ParticipationHandlers) get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	view, err := h.ledger.GetParticipation(c.Request.Context(), id, userID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// VerifyBoostRequest names the channel to re-check.
type VerifyBoostRequest struct {
	ChannelID int64 `json:"channel_id"`
}

// @Summary Verify boosts for a channel
// @Tags participation
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param input body VerifyBoostRequest true "Channel"
// @Success 200 {object} boost.Result
// @Failure 422 {object} middleware.ErrorResponse "CHANNEL_NOT_CONFIGURED"
// @Failure 502 {object} middleware.ErrorResponse
// @Router /giveaways/{id}/boosts/verify [post]
func (h *ParticipationHandlers) verifyBoost(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req VerifyBoostRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ChannelID == 0 {
		mw.Error(c, apperrors.NewValidationError("channel_id", "is required"))
		return
	}
	res, err := h.boosts.VerifyBoost(c.Request.Context(), id, userID, req.ChannelID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Complete a task
// @Tags tasks
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param task_id path string true "Task ID"
// @Success 200 {object} task.CompleteResult
// @Failure 409 {object} middleware.ErrorResponse "TASK_ALREADY_COMPLETED"
// @Router /giveaways/{id}/tasks/{task_id}/complete [post]
func (h *ParticipationHandlers) completeTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	taskID, ok := pathID(c, "task_id")
	if !ok {
		return
	}
	res, err := h.tasks.CompleteTask(c.Request.Context(), id, userID, taskID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
