package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/service/captcha"
)

type CaptchaHandlers struct {
	captcha *captcha.Service
}

func NewCaptchaHandlers(captcha *captcha.Service) *CaptchaHandlers {
	return &CaptchaHandlers{captcha: captcha}
}

func (h *CaptchaHandlers) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/captcha", h.generate)
	router.POST("/captcha/verify", h.verify)
}

// @Summary Issue a captcha challenge
// @Tags captcha
// @Produce json
// @Security TelegramInitData
// @Success 201 {object} captcha.Challenge
// @Failure 429 {object} middleware.ErrorResponse
// @Router /captcha [post]
func (h *CaptchaHandlers) generate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	ch, err := h.captcha.Generate(c.Request.Context(), userID)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// VerifyCaptchaRequest is the user's answer to a challenge.
type VerifyCaptchaRequest struct {
	Token  string `json:"token"`
	Answer int    `json:"answer"`
}

// @Summary Answer a captcha challenge
// @Description A wrong answer returns ok=false with the attempts left.
// @Tags captcha
// @Accept json
// @Produce json
// @Security TelegramInitData
// @Param input body VerifyCaptchaRequest true "Answer"
// @Success 200 {object} captcha.VerifyResult
// @Failure 422 {object} middleware.ErrorResponse "CAPTCHA_INVALID or CAPTCHA_TOO_MANY_ATTEMPTS"
// @Router /captcha/verify [post]
func (h *CaptchaHandlers) verify(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var req VerifyCaptchaRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.captcha.Verify(c.Request.Context(), userID, req.Token, req.Answer)
	if err != nil {
		mw.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
