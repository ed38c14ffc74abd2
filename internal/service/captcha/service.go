package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/cache"
	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
)

// Config holds the captcha limits.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
	RateLimit   int
	RateWindow  time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
		RateLimit:   10,
		RateWindow:  10 * time.Minute,
	}
}

// Challenge is returned to the user after Generate.
type Challenge struct {
	Question  string    `json:"question"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyResult is the outcome of a verify call that did not fail outright.
type VerifyResult struct {
	OK           bool `json:"ok"`
	AttemptsLeft *int `json:"attempts_left,omitempty"`
}

type storedChallenge struct {
	UserID    int64     `json:"user_id"`
	Question  string    `json:"question"`
	Answer    int       `json:"answer"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and verifies single-use arithmetic challenges.
type Service struct {
	store cache.ExpiringStore
	cfg   Config
	now   func() time.Time
	intn  func(n int) (int, error)
}

func NewService(store cache.ExpiringStore, cfg Config) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now, intn: cryptoIntn}
}

func tokenKey(token string) string { return "captcha:token:" + token }
func attemptsKey(token string) string { return "captcha:attempts:" + token }
func generationsKey(userID int64) string { return fmt.Sprintf("captcha:gen:%d", userID) }
func passKey(userID int64) string { return fmt.Sprintf("captcha:pass:%d", userID) }

// Generate creates a challenge for userID subject to the per-user rate limit.
func (s *Service) Generate(ctx context.Context, userID int64) (*Challenge, error) {
	now := s.now()
	win, err := s.store.IncrementCounterWindow(ctx, generationsKey(userID), now, s.cfg.RateWindow, s.cfg.RateLimit)
	if err != nil {
		return nil, apperrors.NewCacheError("captcha rate window", err)
	}
	if !win.Allowed {
		retryAfter := win.Oldest.Add(s.cfg.RateWindow).Sub(now)
		logger.Debug().Int64("user_id", userID).Dur("retry_after", retryAfter).Msg("captcha generation rate limited")
		return nil, apperrors.NewRateLimitError("captcha", retryAfter)
	}

	q, err := randomQuestion(s.intn)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate captcha question")
	}
	token, err := newToken()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate captcha token")
	}
	c := storedChallenge{UserID: userID, Question: q.Text, Answer: q.Answer, ExpiresAt: now.Add(s.cfg.TTL)}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode captcha")
	}
	if err := s.store.Put(ctx, tokenKey(token), payload, s.cfg.TTL); err != nil {
		return nil, apperrors.NewCacheError("store captcha", err)
	}
	return &Challenge{Question: q.Text, Token: token, ExpiresAt: c.ExpiresAt}, nil
}

// Verify checks answer against token. Unknown, expired and foreign tokens all
// fail with the same CAPTCHA_INVALID error.
func (s *Service) Verify(ctx context.Context, userID int64, token string, answer int) (*VerifyResult, error) {
	invalid := apperrors.New(apperrors.ErrCodeCaptchaInvalid, "Captcha is invalid or expired")
	if token == "" {
		return nil, invalid
	}

	raw, err := s.store.Get(ctx, tokenKey(token))
	if err != nil {
		return nil, apperrors.NewCacheError("load captcha", err)
	}
	if raw == nil {
		return nil, invalid
	}
	var c storedChallenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode captcha")
	}
	now := s.now()
	if c.UserID != userID {
		return nil, invalid
	}
	if !now.Before(c.ExpiresAt) {
		s.consume(ctx, token)
		return nil, invalid
	}

	attempts, err := s.store.Incr(ctx, attemptsKey(token), c.ExpiresAt.Sub(now))
	if err != nil {
		return nil, apperrors.NewCacheError("count captcha attempt", err)
	}
	if int(attempts) > s.cfg.MaxAttempts {
		s.consume(ctx, token)
		return nil, apperrors.New(apperrors.ErrCodeCaptchaTooManyAttempts, "Too many captcha attempts")
	}

	if answer != c.Answer {
		left := s.cfg.MaxAttempts - int(attempts)
		return &VerifyResult{OK: false, AttemptsLeft: &left}, nil
	}

	// Only the caller that actually removes the token wins.
	deleted, err := s.store.Delete(ctx, tokenKey(token))
	if err != nil {
		return nil, apperrors.NewCacheError("consume captcha", err)
	}
	if !deleted {
		return nil, invalid
	}
	_, _ = s.store.Delete(ctx, attemptsKey(token))
	if err := s.putPass(ctx, Pass{UserID: userID, ExpiresAt: s.now().Add(s.cfg.TTL)}); err != nil {
		return nil, err
	}
	return &VerifyResult{OK: true}, nil
}

// Pass is a solved captcha waiting to be spent on a join.
type Pass struct {
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClaimPass takes the pass recorded by Verify out of the store. Only one
// caller can claim a given pass; the rest get nil.
func (s *Service) ClaimPass(ctx context.Context, userID int64) (*Pass, error) {
	raw, err := s.store.Get(ctx, passKey(userID))
	if err != nil {
		return nil, apperrors.NewCacheError("load captcha pass", err)
	}
	if raw == nil {
		return nil, nil
	}
	deleted, err := s.store.Delete(ctx, passKey(userID))
	if err != nil {
		return nil, apperrors.NewCacheError("claim captcha pass", err)
	}
	if !deleted {
		return nil, nil
	}
	var p Pass
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode captcha pass")
	}
	return &p, nil
}

// RestorePass puts back a claimed pass that was not spent. It keeps its
// original expiry and is dropped if that has passed.
func (s *Service) RestorePass(ctx context.Context, p *Pass) error {
	if p == nil || !p.ExpiresAt.After(s.now()) {
		return nil
	}
	return s.putPass(ctx, *p)
}

func (s *Service) putPass(ctx context.Context, p Pass) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode captcha pass")
	}
	if err := s.store.Put(ctx, passKey(p.UserID), payload, p.ExpiresAt.Sub(s.now())); err != nil {
		return apperrors.NewCacheError("record captcha pass", err)
	}
	return nil
}

func (s *Service) consume(ctx context.Context, token string) {
	if _, err := s.store.Delete(ctx, tokenKey(token)); err != nil {
		logger.Warn().Err(err).Msg("failed to delete captcha token")
	}
	if _, err := s.store.Delete(ctx, attemptsKey(token)); err != nil {
		logger.Warn().Err(err).Msg("failed to delete captcha attempts")
	}
}
