// Package participation records joins and exposes a participant's ticket ledger.
package participation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	"github.com/open-builders/giveaway-tickets/internal/service/fraud"
	"github.com/open-builders/giveaway-tickets/internal/service/referral"
)

const (
	maxSourceTagLength   = 64
	subscriptionParallel = 4
)

var tracer = otel.Tracer("github.com/open-builders/giveaway-tickets/internal/service/participation")

// SubscriptionChecker verifies channel membership.
type SubscriptionChecker interface {
	IsMember(ctx context.Context, userID, channelID int64) (bool, error)
}

// Joinability resolves a giveaway that currently accepts joins.
type Joinability interface {
	CheckJoinable(ctx context.Context, giveawayID string) (*dg.Giveaway, error)
}

// JoinInput is the caller side of a join.
type JoinInput struct {
	UserID         int64
	IsPremium      bool
	CaptchaPassed  bool
	ReferrerUserID *int64
	SourceTag      string
}

// JoinResult is returned for a successful join.
type JoinResult struct {
	ParticipationID  string    `json:"participation_id"`
	TicketsBase      int       `json:"tickets_base"`
	TicketsExtra     int       `json:"tickets_extra"`
	JoinedAt         time.Time `json:"joined_at"`
	FraudScore       int       `json:"fraud_score"`
	CaptchaRequired  bool      `json:"captcha_required"`
	ReferralCredited bool      `json:"referral_credited"`
}

type Ledger struct {
	giveaways      Joinability
	participations dp.Repository
	subscriptions  SubscriptionChecker
	gate           *fraud.Gate
	referrals      *referral.Tracker
	now            func() time.Time
}

func NewLedger(
	giveaways Joinability,
	participations dp.Repository,
	subscriptions SubscriptionChecker,
	gate *fraud.Gate,
	referrals *referral.Tracker,
) *Ledger {
	return &Ledger{
		giveaways:      giveaways,
		participations: participations,
		subscriptions:  subscriptions,
		gate:           gate,
		referrals:      referrals,
		now:            time.Now,
	}
}

// Join records in's user as a participant of giveawayID. Preconditions are
// checked in order and the first failure is returned: joinable giveaway, not
// yet joined, required subscriptions, fraud gate. The storage layer enforces
// uniqueness, so a concurrent duplicate still ends in ALREADY_JOINED.
func (l *Ledger) Join(ctx context.Context, giveawayID string, in JoinInput) (res *JoinResult, err error) {
	ctx, span := tracer.Start(ctx, "participation.Join")
	span.SetAttributes(attribute.String("giveaway.id", giveawayID), attribute.Int64("user.id", in.UserID))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if len(in.SourceTag) > maxSourceTagLength {
		return nil, apperrors.NewValidationError("source_tag", "must be at most 64 characters")
	}
	if in.ReferrerUserID != nil && *in.ReferrerUserID <= 0 {
		return nil, apperrors.NewValidationError("referrer_user_id", "must be a positive user id")
	}

	g, err := l.giveaways.CheckJoinable(ctx, giveawayID)
	if err != nil {
		return nil, err
	}

	_, err = l.participations.Get(ctx, giveawayID, in.UserID)
	switch {
	case err == nil:
		return nil, alreadyJoined(giveawayID)
	case !errors.Is(err, dp.ErrNotFound):
		return nil, apperrors.NewDatabaseError("load participation", err)
	}

	if missing := l.missingSubscriptions(ctx, in.UserID, g.Condition.RequiredChannelIDs); len(missing) > 0 {
		return nil, apperrors.New(apperrors.ErrCodeSubscriptionRequired, "Subscribe to the required channels and try again").
			WithDetail("missing_channel_ids", missing)
	}

	decision := l.gate.Evaluate(ctx, in.UserID, in.IsPremium, g)
	span.SetAttributes(attribute.Int("fraud.score", decision.Score), attribute.Bool("captcha.required", decision.CaptchaRequired))
	if decision.CaptchaRequired && !in.CaptchaPassed {
		return nil, apperrors.New(apperrors.ErrCodeCaptchaRequired, "Solve the captcha to join this giveaway")
	}

	var claim *dp.ReferralClaim
	if g.Condition.InviteEnabled && in.ReferrerUserID != nil {
		var outcome referral.Outcome
		claim, outcome, err = l.referrals.CreditReferral(ctx, giveawayID, *in.ReferrerUserID, in.UserID, g.Condition.InviteMax)
		if err != nil {
			return nil, err
		}
		logger.Debug().
			Str("giveaway_id", giveawayID).
			Int64("user_id", in.UserID).
			Int64("referrer_id", *in.ReferrerUserID).
			Stringer("outcome", outcome).
			Msg("referral evaluated")
	}

	now := l.now().UTC()
	p := &dp.Participation{
		ID:          uuid.NewString(),
		GiveawayID:  giveawayID,
		UserID:      in.UserID,
		Status:      dp.StatusJoined,
		TicketsBase: 1,
		Boosts:      dp.BoostSnapshot{},
		FraudScore:  decision.Score,
		Conditions:  dp.NewConditionsSnapshot(g.Condition, decision.CaptchaRequired, now),
		SourceTag:   in.SourceTag,
		JoinedAt:    now,
	}
	joined, err := l.participations.Join(ctx, p, claim)
	switch {
	case errors.Is(err, dp.ErrAlreadyJoined):
		return nil, alreadyJoined(giveawayID)
	case errors.Is(err, dg.ErrNotFound):
		return nil, apperrors.NewGiveawayNotFoundError(giveawayID)
	case err != nil:
		return nil, apperrors.NewDatabaseError("create participation", err)
	}

	logger.Info().
		Str("giveaway_id", giveawayID).
		Int64("user_id", in.UserID).
		Str("participation_id", p.ID).
		Int("fraud_score", decision.Score).
		Bool("referral_credited", joined.ReferralCredited).
		Msg("user joined giveaway")

	return &JoinResult{
		ParticipationID:  p.ID,
		TicketsBase:      p.TicketsBase,
		TicketsExtra:     p.TicketsExtra,
		JoinedAt:         p.JoinedAt,
		FraudScore:       p.FraudScore,
		CaptchaRequired:  decision.CaptchaRequired,
		ReferralCredited: joined.ReferralCredited,
	}, nil
}

// missingSubscriptions checks every required channel and returns the ones the
// user is not a member of. Checker failures count as missing.
func (l *Ledger) missingSubscriptions(ctx context.Context, userID int64, channels []int64) []int64 {
	if len(channels) == 0 {
		return nil
	}
	var (
		mu      sync.Mutex
		missing []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(subscriptionParallel)
	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			ok, err := l.subscriptions.IsMember(gctx, userID, ch)
			if err != nil {
				logger.Warn().Err(err).Int64("user_id", userID).Int64("channel_id", ch).Msg("subscription check failed")
			}
			if err != nil || !ok {
				mu.Lock()
				missing = append(missing, ch)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	// Report in configured order.
	return lo.Filter(channels, func(ch int64, _ int) bool { return lo.Contains(missing, ch) })
}

func alreadyJoined(giveawayID string) error {
	return apperrors.New(apperrors.ErrCodeAlreadyJoined, "User already joined this giveaway").
		WithDetail("giveaway_id", giveawayID)
}
