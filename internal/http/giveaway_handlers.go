package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	giveawaysvc "github.com/open-builders/giveaway-tickets/internal/service/giveaway"
	"github.com/open-builders/giveaway-tickets/internal/service/task"
)

// GiveawayHandlers serves the owner side of the lifecycle.
type GiveawayHandlers struct {
	giveaways *giveawaysvc.Service
	tasks     *task.Service
}

func NewGiveawayHandlers(giveaways *giveawaysvc.Service, tasks *task.Service) *GiveawayHandlers {
	return &GiveawayHandlers{giveaways: giveaways, tasks: tasks}
}

func (h *GiveawayHandlers) RegisterRoutes(router *gin.RouterGroup) {
	giveaways := router.Group("/giveaways")
	{
		giveaways.POST("", h.create)
		giveaways.GET("/:id", h.get)
		giveaways.PUT("/:id/condition", h.updateCondition)
		giveaways.POST("/:id/submit", h.submit)
		giveaways.POST("/:id/accept", h.accept)
		giveaways.POST("/:id/reject", h.reject)
		giveaways.POST("/:id/cancel", h.cancel)
		giveaways.POST("/:id/tasks", h.addTask)
		giveaways.GET("/:id/tasks", h.listTasks)
	}
}

// @title Giveaway Tickets API
// @version 1.0
// @description Participation, anti-abuse and ticket accounting for Telegram giveaways
// @BasePath /api/v1

// @securityDefinitions.apikey TelegramInitData
// @in header
// @name X-Telegram-Init-Data
// @description Telegram Mini App init data

// @Summary Create a giveaway draft
// @Tags giveaways
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body giveaway.CreateInput true "Giveaway"
// @Success 201 {object} giveaway.Giveaway
// @Failure 400 {object} middleware.ErrorResponse
// @Router /giveaways [post]
func (h *GiveawayHandlers) create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var in giveawaysvc.CreateInput
	if !bindJSON(c, &in) {
		return
	}
	g, err := h.giveaways.Create(c.Request.Context(), userID, in)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// @Summary Get a giveaway
// @Tags giveaways
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} giveaway.Giveaway
// @Failure 404 {object} middleware.ErrorResponse
// @Router /giveaways/{id} [get]
func (h *GiveawayHandlers) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := h.giveaways.Get(c.Request.Context(), id)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary Replace the participation condition before launch
// @Tags giveaways
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param input body giveaway.Condition true "Condition"
// @Success 200 {object} giveaway.Giveaway
// @Failure 409 {object} middleware.ErrorResponse "CONDITION_LOCKED"
// @Router /giveaways/{id}/condition [put]
func (h *GiveawayHandlers) updateCondition(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var cond dg.Condition
	if !bindJSON(c, &cond) {
		return
	}
	g, err := h.giveaways.UpdateCondition(c.Request.Context(), id, userID, cond)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

type transitionFunc func(*giveawaysvc.Service, *gin.Context, string, int64) (*dg.Giveaway, error)

func (h *GiveawayHandlers) transition(c *gin.Context, fn transitionFunc) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	g, err := fn(h.giveaways, c, id, userID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// @Summary Submit a draft for confirmation
// @Tags giveaways
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} giveaway.Giveaway
// @Failure 409 {object} middleware.ErrorResponse "INVALID_TRANSITION"
// @Router /giveaways/{id}/submit [post]
func (h *GiveawayHandlers) submit(c *gin.Context) {
	h.transition(c, func(s *giveawaysvc.Service, c *gin.Context, id string, userID int64) (*dg.Giveaway, error) {
		return s.SubmitForConfirmation(c.Request.Context(), id, userID)
	})
}

// @Summary Accept a giveaway awaiting confirmation
// @Tags giveaways
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} giveaway.Giveaway
// @Router /giveaways/{id}/accept [post]
func (h *GiveawayHandlers) accept(c *gin.Context) {
	h.transition(c, func(s *giveawaysvc.Service, c *gin.Context, id string, userID int64) (*dg.Giveaway, error) {
		return s.Accept(c.Request.Context(), id, userID)
	})
}

// @Summary Send a giveaway back to draft
// @Tags giveaways
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} giveaway.Giveaway
// @Router /giveaways/{id}/reject [post]
func (h *GiveawayHandlers) reject(c *gin.Context) {
	h.transition(c, func(s *giveawaysvc.Service, c *gin.Context, id string, userID int64) (*dg.Giveaway, error) {
		return s.Reject(c.Request.Context(), id, userID)
	})
}

// @Summary Cancel a giveaway
// @Tags giveaways
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {object} giveaway.Giveaway
// @Router /giveaways/{id}/cancel [post]
func (h *GiveawayHandlers) cancel(c *gin.Context) {
	h.transition(c, func(s *giveawaysvc.Service, c *gin.Context, id string, userID int64) (*dg.Giveaway, error) {
		return s.Cancel(c.Request.Context(), id, userID)
	})
}

// @Summary Add an owner-defined task
// @Tags tasks
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param input body task.AddInput true "Task"
// @Success 201 {object} giveaway.Task
// @Router /giveaways/{id}/tasks [post]
func (h *GiveawayHandlers) addTask(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in task.AddInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := h.tasks.AddTask(c.Request.Context(), id, userID, in)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// @Summary List a giveaway's tasks
// @Tags tasks
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 200 {array} giveaway.Task
// @Router /giveaways/{id}/tasks [get]
func (h *GiveawayHandlers) listTasks(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	tasks, err := h.tasks.ListTasks(c.Request.Context(), id)
	if err != nil {
		mw.Error(c, err)
		return
	}
	if tasks == nil {
		tasks = []dg.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}
