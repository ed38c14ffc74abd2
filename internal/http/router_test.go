package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cachememory "github.com/open-builders/giveaway-tickets/internal/cache/memory"
	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	mw "github.com/open-builders/giveaway-tickets/internal/http/middleware"
	"github.com/open-builders/giveaway-tickets/internal/repository/memory"
	"github.com/open-builders/giveaway-tickets/internal/service/boost"
	"github.com/open-builders/giveaway-tickets/internal/service/captcha"
	"github.com/open-builders/giveaway-tickets/internal/service/fraud"
	giveawaysvc "github.com/open-builders/giveaway-tickets/internal/service/giveaway"
	"github.com/open-builders/giveaway-tickets/internal/service/participation"
	"github.com/open-builders/giveaway-tickets/internal/service/referral"
	"github.com/open-builders/giveaway-tickets/internal/service/story"
	"github.com/open-builders/giveaway-tickets/internal/service/task"
)

const testUserHeader = "X-Test-User"

type fakeTelegram struct {
	boosts      map[int64]int
	memberDelay time.Duration
}

func (f *fakeTelegram) IsMember(context.Context, int64, int64) (bool, error) {
	time.Sleep(f.memberDelay)
	return true, nil
}

func (f *fakeTelegram) GetBoostCount(_ context.Context, _ int64, channelID int64) (int, error) {
	return f.boosts[channelID], nil
}

// headerAuth trusts the test header instead of signed init data.
func headerAuth(c *gin.Context) {
	id, err := strconv.ParseInt(c.GetHeader(testUserHeader), 10, 64)
	if err != nil {
		mw.Error(c, apperrors.NewUnauthorizedError("missing test user"))
		return
	}
	mw.SetUser(c, id, false)
	c.Next()
}

type apiFixture struct {
	router *gin.Engine
	tg     *fakeTelegram
	ready  error
}

func newAPIFixture(t *testing.T, captchaCfg captcha.Config) *apiFixture {
	t.Helper()
	store := memory.NewStore()
	tg := &fakeTelegram{boosts: map[int64]int{}}
	giveaways := giveawaysvc.NewService(store.Giveaways, nil)
	lowRisk := fraud.PolicyFunc(func(context.Context, fraud.Signals) (int, error) { return 5, nil })

	f := &apiFixture{tg: tg}
	f.router = NewRouter(RouterConfig{
		Debug: true,
		Auth:  headerAuth,
		Ready: func(context.Context) error { return f.ready },
	}, Services{
		Giveaways: giveaways,
		Ledger: participation.NewLedger(giveaways, store.Participations, tg,
			fraud.NewGate(lowRisk, store.Participations, 50), referral.NewTracker(store.Participations)),
		Boosts:  boost.NewVerifier(store.Giveaways, store.Participations, tg, 10),
		Stories: story.NewWorkflow(store.Giveaways, store.Participations, store.Stories),
		Tasks:   task.NewService(store.Giveaways, store.Participations, nil),
		Captcha: captcha.NewService(cachememory.NewStore(), captchaCfg),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, userID int64, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(testUserHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, rec.Body.String())
	return errBody["code"].(string)
}

// solve answers a "a + b = ?" or "a - b = ?" challenge.
func solve(t *testing.T, question string) int {
	t.Helper()
	var a, b int
	var op string
	_, err := fmt.Sscanf(question, "%d %s %d = ?", &a, &op, &b)
	require.NoError(t, err)
	if op == "-" {
		return a - b
	}
	return a + b
}

const owner, player = int64(1), int64(42)

func (f *apiFixture) launch(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/giveaways", owner, map[string]interface{}{
		"title":         "Prize",
		"winners_count": 1,
		"condition": map[string]interface{}{
			"captcha_mode":      "ALL",
			"boost_enabled":     true,
			"boost_channel_ids": []int64{-100},
			"stories_enabled":   true,
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/tasks", owner, map[string]interface{}{
		"title": "Follow", "url": "https://t.me/channel", "tickets": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, step := range []string{"submit", "accept"} {
		rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/"+step, owner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, "ACTIVE", decode(t, rec)["status"])
	return id
}

func TestJoinRequiresVerifiedCaptcha(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	id := f.launch(t)

	rec := f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CAPTCHA_REQUIRED", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true})
	assert.Equal(t, "CAPTCHA_REQUIRED", errorCode(t, rec), "claiming a pass without verifying is ignored")

	rec = f.do(t, http.MethodPost, "/api/v1/captcha", player, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	ch := decode(t, rec)

	rec = f.do(t, http.MethodPost, "/api/v1/captcha/verify", player, VerifyCaptchaRequest{
		Token:  ch["token"].(string),
		Answer: solve(t, ch["question"].(string)) + 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ok"])

	rec = f.do(t, http.MethodPost, "/api/v1/captcha/verify", player, VerifyCaptchaRequest{
		Token:  ch["token"].(string),
		Answer: solve(t, ch["question"].(string)),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true, SourceTag: "post"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	joined := decode(t, rec)
	assert.Equal(t, true, joined["captcha_required"])
	assert.EqualValues(t, 1, joined["tickets_base"])

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_JOINED", errorCode(t, rec))

	// The pass was spent by the successful join.
	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", 43, JoinRequest{CaptchaPassed: true})
	assert.Equal(t, "CAPTCHA_REQUIRED", errorCode(t, rec))
}

func TestTicketSourcesOverHTTP(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	id := f.launch(t)

	rec := f.do(t, http.MethodPost, "/api/v1/captcha", player, nil)
	ch := decode(t, rec)
	f.do(t, http.MethodPost, "/api/v1/captcha/verify", player, VerifyCaptchaRequest{
		Token: ch["token"].(string), Answer: solve(t, ch["question"].(string)),
	})
	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	f.tg.boosts[-100] = 3
	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/boosts/verify", player, VerifyBoostRequest{ChannelID: -100})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 3, decode(t, rec)["tickets_added"])

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/boosts/verify", player, VerifyBoostRequest{ChannelID: -5})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CHANNEL_NOT_CONFIGURED", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/boosts/verify", player, VerifyBoostRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/story", player, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	requestID := decode(t, rec)["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/stories/"+requestID+"/approve", player, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/stories/"+requestID+"/approve", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "APPROVED", decode(t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/giveaways/"+id+"/tasks", player, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	require.Len(t, tasks, 1)
	taskID := tasks[0]["id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/tasks/"+taskID+"/complete", player, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/tasks/"+taskID+"/complete", player, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TASK_ALREADY_COMPLETED", errorCode(t, rec))

	rec = f.do(t, http.MethodGet, "/api/v1/giveaways/"+id+"/participation", player, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode(t, rec)
	assert.EqualValues(t, 1, view["tickets_base"])
	assert.EqualValues(t, 3+1+2, view["tickets_extra"])
	assert.EqualValues(t, 7, view["total_tickets"])
	assert.Equal(t, true, view["stories_shared"])
}

func TestLifecycleErrorsOverHTTP(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	id := f.launch(t)

	rec := f.do(t, http.MethodPut, "/api/v1/giveaways/"+id+"/condition", owner, map[string]interface{}{"captcha_mode": "OFF"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONDITION_LOCKED", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/submit", owner, nil)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/cancel", player, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/giveaways/"+uuid.NewString(), player, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "GIVEAWAY_NOT_FOUND", errorCode(t, rec))

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways", owner, map[string]interface{}{"title": "", "winners_count": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways", owner, map[string]interface{}{
		"title": "x", "winners_count": 1, "condition": map[string]interface{}{"captcha_mode": "SOMETIMES"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/giveaways/"+id, 0, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(mw.RequestIDHeader))
}

func TestCaptchaRateLimitSetsRetryAfter(t *testing.T) {
	cfg := captcha.DefaultConfig()
	cfg.RateLimit = 1
	f := newAPIFixture(t, cfg)

	rec := f.do(t, http.MethodPost, "/api/v1/captcha", player, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/captcha", player, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "TOO_MANY_REQUESTS", errorCode(t, rec))
	secs, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, secs)

	rec = f.do(t, http.MethodPost, "/api/v1/captcha/verify", player, VerifyCaptchaRequest{Token: "nope", Answer: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "CAPTCHA_INVALID", errorCode(t, rec))
}

func TestHealthAndReadiness(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())

	rec := f.do(t, http.MethodGet, "/health", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/ready", 0, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f.ready = errors.New("postgres down")
	rec = f.do(t, http.MethodGet, "/ready", 0, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func (f *apiFixture) passCaptcha(t *testing.T, userID int64) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/captcha", userID, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ch := decode(t, rec)
	rec = f.do(t, http.MethodPost, "/api/v1/captcha/verify", userID, VerifyCaptchaRequest{
		Token: ch["token"].(string), Answer: solve(t, ch["question"].(string)),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, true, decode(t, rec)["ok"])
}

func (f *apiFixture) launchGated(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/giveaways", owner, map[string]interface{}{
		"title":         "Gated",
		"winners_count": 1,
		"condition": map[string]interface{}{
			"captcha_mode":         "ALL",
			"required_channel_ids": []int64{-200},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)
	for _, step := range []string{"submit", "accept"} {
		rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/"+step, owner, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	return id
}

func TestOneCaptchaPassAdmitsOneConcurrentJoin(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	f.tg.memberDelay = 50 * time.Millisecond

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.launchGated(t)
	}
	f.passCaptcha(t, player)

	codes := make([]int, len(ids))
	bodies := make([]string, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			rec := f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true})
			codes[i], bodies[i] = rec.Code, rec.Body.String()
		}(i, id)
	}
	wg.Wait()

	created := 0
	for i, code := range codes {
		if code == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusUnprocessableEntity, code, bodies[i])
		assert.Contains(t, bodies[i], "CAPTCHA_REQUIRED")
	}
	assert.Equal(t, 1, created)
}

func TestFailedJoinKeepsCaptchaPass(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	id := f.launchGated(t)
	f.passCaptcha(t, player)

	rec := f.do(t, http.MethodPost, "/api/v1/giveaways/"+uuid.NewString()+"/join", player, JoinRequest{CaptchaPassed: true})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+id+"/join", player, JoinRequest{CaptchaPassed: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	other := f.launchGated(t)
	rec = f.do(t, http.MethodPost, "/api/v1/giveaways/"+other+"/join", player, JoinRequest{CaptchaPassed: true})
	assert.Equal(t, "CAPTCHA_REQUIRED", errorCode(t, rec))
}

func TestMalformedPathIDsAreRejected(t *testing.T) {
	f := newAPIFixture(t, captcha.DefaultConfig())
	id := f.launch(t)

	cases := []struct {
		method string
		path   string
		user   int64
	}{
		{http.MethodGet, "/api/v1/giveaways/not-a-uuid", player},
		{http.MethodPut, "/api/v1/giveaways/123/condition", owner},
		{http.MethodPost, "/api/v1/giveaways/abc/cancel", owner},
		{http.MethodGet, "/api/v1/giveaways/abc/tasks", player},
		{http.MethodPost, "/api/v1/giveaways/abc/join", player},
		{http.MethodGet, "/api/v1/giveaways/abc/participation", player},
		{http.MethodPost, "/api/v1/giveaways/" + id + "/tasks/nope/complete", player},
		{http.MethodPost, "/api/v1/giveaways/abc/story", player},
		{http.MethodPost, "/api/v1/giveaways/" + id + "/stories/nope/approve", owner},
		{http.MethodPost, "/api/v1/giveaways/" + id + "/stories/nope/reject", owner},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := f.do(t, tc.method, tc.path, tc.user, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
		})
	}
}
