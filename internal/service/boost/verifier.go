// Package boost converts observed Telegram channel boosts into bonus tickets.
package boost

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
)

const (
	DefaultMaxPerChannel = 10
	maxCASRetries        = 3
)

var tracer = otel.Tracer("github.com/open-builders/giveaway-tickets/internal/service/boost")

// Checker returns how many times userID currently boosts channelID.
type Checker interface {
	GetBoostCount(ctx context.Context, userID, channelID int64) (int, error)
}

// Result of a verification.
type Result struct {
	NewBoosts             int `json:"new_boosts"`
	TotalBoostsForChannel int `json:"total_boosts_for_channel"`
	TicketsAdded          int `json:"tickets_added"`
	TotalTickets          int `json:"total_tickets"`
}

type Verifier struct {
	giveaways      dg.Repository
	participations dp.Repository
	checker        Checker
	maxPerChannel  int
}

func NewVerifier(giveaways dg.Repository, participations dp.Repository, checker Checker, maxPerChannel int) *Verifier {
	if maxPerChannel <= 0 {
		maxPerChannel = DefaultMaxPerChannel
	}
	return &Verifier{
		giveaways:      giveaways,
		participations: participations,
		checker:        checker,
		maxPerChannel:  maxPerChannel,
	}
}

// TicketsFor returns the tickets earned by moving a channel's observed boost
// count from previous to actual, with both sides capped at maxPerChannel.
func TicketsFor(previous, actual, maxPerChannel int) int {
	return max(0, min(actual, maxPerChannel)-min(previous, maxPerChannel))
}

// VerifyBoost polls the user's boost count for channelID and credits any
// increase since the last observation. Repeating the call with an unchanged
// count credits nothing.
func (v *Verifier) VerifyBoost(ctx context.Context, giveawayID string, userID, channelID int64) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "boost.VerifyBoost")
	span.SetAttributes(
		attribute.String("giveaway.id", giveawayID),
		attribute.Int64("user.id", userID),
		attribute.Int64("channel.id", channelID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	g, err := v.giveaways.GetByID(ctx, giveawayID)
	if errors.Is(err, dg.ErrNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(giveawayID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load giveaway", err)
	}
	if g.Status != dg.StatusActive {
		return nil, apperrors.New(apperrors.ErrCodeGiveawayNotActive, "Giveaway is not active").
			WithDetail("status", g.Status.String())
	}
	if !g.Condition.BoostEnabled {
		return nil, apperrors.New(apperrors.ErrCodeBoostsDisabled, "Boosts are not enabled for this giveaway")
	}
	if !g.Condition.HasBoostChannel(channelID) {
		return nil, apperrors.New(apperrors.ErrCodeChannelNotConfigured, "Channel is not configured for boosts").
			WithDetail("channel_id", channelID)
	}

	p, err := v.loadParticipation(ctx, giveawayID, userID)
	if err != nil {
		return nil, err
	}

	actual, err := v.checker.GetBoostCount(ctx, userID, channelID)
	if err != nil {
		logger.Warn().Err(err).
			Str("giveaway_id", giveawayID).
			Int64("user_id", userID).
			Int64("channel_id", channelID).
			Msg("boost checker failed")
		return nil, apperrors.Wrap(err, apperrors.ErrCodeExternalAPI, "Failed to fetch boost count")
	}
	span.SetAttributes(attribute.Int("boost.actual", actual))

	for attempt := 0; ; attempt++ {
		previous := p.Boosts.Observed(channelID)
		if actual <= previous {
			return &Result{TotalBoostsForChannel: previous, TotalTickets: p.TotalTickets()}, nil
		}

		credit := dp.BoostCredit{
			ParticipationID: p.ID,
			ChannelID:       channelID,
			Previous:        previous,
			Observed:        actual,
			TicketsToAdd:    TicketsFor(previous, actual, v.maxPerChannel),
		}
		err = v.participations.ApplyBoost(ctx, credit)
		if err == nil {
			logger.Info().
				Str("participation_id", p.ID).
				Int64("channel_id", channelID).
				Int("previous", previous).
				Int("observed", actual).
				Int("tickets_added", credit.TicketsToAdd).
				Msg("boost credited")
			return &Result{
				NewBoosts:             actual - previous,
				TotalBoostsForChannel: actual,
				TicketsAdded:          credit.TicketsToAdd,
				TotalTickets:          p.TotalTickets() + credit.TicketsToAdd,
			}, nil
		}
		if !errors.Is(err, dp.ErrBoostConflict) || attempt+1 >= maxCASRetries {
			return nil, apperrors.NewDatabaseError("apply boost", err)
		}
		// Another verification moved the snapshot; recompute from the new state.
		if p, err = v.loadParticipation(ctx, giveawayID, userID); err != nil {
			return nil, err
		}
	}
}

func (v *Verifier) loadParticipation(ctx context.Context, giveawayID string, userID int64) (*dp.Participation, error) {
	p, err := v.participations.Get(ctx, giveawayID, userID)
	if errors.Is(err, dp.ErrNotFound) {
		return nil, apperrors.NewParticipationNotFoundError(giveawayID, userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load participation", err)
	}
	return p, nil
}
