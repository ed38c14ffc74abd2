package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/service/story"
)

type StoryHandlers struct {
	workflow *story.Workflow
}

func NewStoryHandlers(workflow *story.Workflow) *StoryHandlers {
	return &StoryHandlers{workflow: workflow}
}

func (h *StoryHandlers) RegisterRoutes(router *gin.RouterGroup) {
	giveaways := router.Group("/giveaways")
	{
		giveaways.POST("/:id/story", h.submit)
		giveaways.POST("/:id/stories/:request_id/approve", h.approve)
		giveaways.POST("/:id/stories/:request_id/reject", h.reject)
	}
}

// @Summary Submit a story share for review
// @Tags stories
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Success 201 {object} story.Request
// @Failure 409 {object} middleware.ErrorResponse "STORY_ALREADY_PENDING or STORY_ALREADY_APPROVED"
// @Router /giveaways/{id}/story [post]
func (h *StoryHandlers) submit(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, err := h.workflow.Submit(c.Request.Context(), id, userID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// @Summary Approve a story request
// @Tags stories
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param request_id path string true "Story request ID"
// @Success 200 {object} story.Request
// @Failure 403 {object} middleware.ErrorResponse
// @Router /giveaways/{id}/stories/{request_id}/approve [post]
func (h *StoryHandlers) approve(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}
	req, err := h.workflow.Approve(c.Request.Context(), id, requestID, userID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RejectStoryRequest carries the optional moderator note.
type RejectStoryRequest struct {
	Reason string `json:"reason"`
}

// @Summary Reject a story request
// @Tags stories
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param id path string true "Giveaway ID"
// @Param request_id path string true "Story request ID"
// @Param input body RejectStoryRequest false "Reason"
// @Success 200 {object} story.Request
// @Router /giveaways/{id}/stories/{request_id}/reject [post]
func (h *StoryHandlers) reject(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}
	var body RejectStoryRequest
	if !bindJSON(c, &body) {
		return
	}
	req, err := h.workflow.Reject(c.Request.Context(), id, requestID, userID, body.Reason)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
