package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
)

const botToken = "123456:test-token"

// signInitData builds init data the way Telegram signs it.
func signInitData(t *testing.T, token string, authDate time.Time, user string) string {
	t.Helper()
	values := map[string]string{
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
		"query_id":  "AAH",
		"user":      user,
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values[k])
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(token))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	q := url.Values{}
	for k, v := range values {
		q.Set(k, v)
	}
	q.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return q.Encode()
}

func newEngine(auth gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/me", auth, func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "is_premium": IsPremium(c)})
	})
	return r
}

func TestInitDataAcceptsSignedUser(t *testing.T) {
	r := newEngine(InitData(botToken, time.Hour))
	raw := signInitData(t, botToken, time.Now(), `{"id":42,"first_name":"Ann","is_premium":true}`)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(InitDataHeader, raw)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		UserID    int64 `json:"user_id"`
		IsPremium bool  `json:"is_premium"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(42), body.UserID)
	assert.True(t, body.IsPremium)

	req = httptest.NewRequest(http.MethodGet, "/me?init_data="+url.QueryEscape(raw), nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInitDataRejections(t *testing.T) {
	valid := signInitData(t, botToken, time.Now(), `{"id":42}`)
	tests := []struct {
		name   string
		token  string
		header string
		status int
	}{
		{"missing", botToken, "", http.StatusUnauthorized},
		{"wrong bot token", botToken, signInitData(t, "999:other", time.Now(), `{"id":42}`), http.StatusUnauthorized},
		{"expired", botToken, signInitData(t, botToken, time.Now().Add(-2*time.Hour), `{"id":42}`), http.StatusUnauthorized},
		{"no user", botToken, signInitData(t, botToken, time.Now(), `{}`), http.StatusUnauthorized},
		{"not configured", "", valid, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(InitData(tt.token, time.Hour))
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(InitDataHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestStatusCode(t *testing.T) {
	tests := map[apperrors.ErrorCode]int{
		apperrors.ErrCodeValidation:            http.StatusBadRequest,
		apperrors.ErrCodeParticipationNotFound: http.StatusNotFound,
		apperrors.ErrCodeStoryNotFound:         http.StatusNotFound,
		apperrors.ErrCodeAlreadyJoined:         http.StatusConflict,
		apperrors.ErrCodeGiveawayNotActive:     http.StatusConflict,
		apperrors.ErrCodeGiveawayExpired:       http.StatusGone,
		apperrors.ErrCodeSubscriptionRequired:  http.StatusUnprocessableEntity,
		apperrors.ErrCodeCaptchaRequired:       http.StatusUnprocessableEntity,
		apperrors.ErrCodeBoostsDisabled:        http.StatusUnprocessableEntity,
		apperrors.ErrCodeTooManyRequests:       http.StatusTooManyRequests,
		apperrors.ErrCodeExternalAPI:           http.StatusBadGateway,
		apperrors.ErrCodeDatabaseError:         http.StatusInternalServerError,
		"SOMETHING_NEW":                        http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, StatusCode(code), code)
	}
}

func TestErrorResponseBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/limited", func(c *gin.Context) {
		Error(c, apperrors.NewRateLimitError("captcha", 1500*time.Millisecond))
	})
	r.GET("/missing", func(c *gin.Context) {
		Error(c, apperrors.NewParticipationNotFoundError("g1", 42))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/limited", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "req-1", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, apperrors.ErrCodeParticipationNotFound, body.Error.Code)
	assert.Equal(t, "/missing", body.Path)
	assert.NotEmpty(t, body.RequestID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
