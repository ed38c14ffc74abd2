// Package fraud scores join attempts and decides when a captcha is mandatory.
package fraud

import (
	"context"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
)

const (
	MinScore = 0
	MaxScore = 100

	DefaultThreshold = 50
	velocityWindow   = time.Hour
)

// Signals is everything a Policy may look at when scoring a join.
type Signals struct {
	UserID      int64
	IsPremium   bool
	Giveaway    *dg.Giveaway
	RecentJoins int
	Now         time.Time
}

// Policy maps signals to a risk score in [MinScore, MaxScore].
type Policy interface {
	Score(ctx context.Context, s Signals) (int, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, s Signals) (int, error)

func (f PolicyFunc) Score(ctx context.Context, s Signals) (int, error) { return f(ctx, s) }

// ActivitySource reports how many giveaways a user joined since a point in time.
type ActivitySource interface {
	CountJoinsSince(ctx context.Context, userID int64, since time.Time) (int, error)
}

// RequiresCaptcha is the gate's decision table.
func RequiresCaptcha(score int, mode dg.CaptchaMode, threshold int) bool {
	switch mode {
	case dg.CaptchaOff:
		return false
	case dg.CaptchaAll:
		return true
	case dg.CaptchaSuspiciousOnly:
		return score >= threshold
	}
	// Unknown modes fail closed.
	return true
}

// Decision is the gate outcome recorded on the participation.
type Decision struct {
	Score           int
	CaptchaRequired bool
}

type Gate struct {
	policy    Policy
	activity  ActivitySource
	threshold int
	now       func() time.Time
}

func NewGate(policy Policy, activity ActivitySource, threshold int) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{policy: policy, activity: activity, threshold: threshold, now: time.Now}
}

func (g *Gate) Threshold() int { return g.threshold }

// Evaluate scores the user for g and applies the giveaway's captcha mode.
// A policy or activity lookup failure is scored as MaxScore.
func (g *Gate) Evaluate(ctx context.Context, userID int64, isPremium bool, gw *dg.Giveaway) Decision {
	now := g.now()
	recent, err := g.activity.CountJoinsSince(ctx, userID, now.Add(-velocityWindow))
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("fraud: join velocity lookup failed")
		return g.decide(MaxScore, gw.Condition.CaptchaMode)
	}

	score, err := g.policy.Score(ctx, Signals{
		UserID:      userID,
		IsPremium:   isPremium,
		Giveaway:    gw,
		RecentJoins: recent,
		Now:         now,
	})
	if err != nil {
		logger.Warn().Err(err).Int64("user_id", userID).Msg("fraud: scoring failed")
		score = MaxScore
	}
	return g.decide(clamp(score), gw.Condition.CaptchaMode)
}

func (g *Gate) decide(score int, mode dg.CaptchaMode) Decision {
	return Decision{Score: score, CaptchaRequired: RequiresCaptcha(score, mode, g.threshold)}
}

func clamp(score int) int {
	return min(max(score, MinScore), MaxScore)
}
