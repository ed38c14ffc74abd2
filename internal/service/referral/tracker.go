// Package referral decides whether an invitation earns the referrer a ticket.
package referral

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
)

// Outcome explains what happened to a referral.
type Outcome uint8

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeSelfReferral
	OutcomeReferrerNotJoined
	OutcomeCapReached
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeSelfReferral:
		return "self_referral"
	case OutcomeReferrerNotJoined:
		return "referrer_not_joined"
	case OutcomeCapReached:
		return "cap_reached"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

// ParticipationLookup is the read side the tracker needs.
type ParticipationLookup interface {
	Get(ctx context.Context, giveawayID string, userID int64) (*dp.Participation, error)
}

type Tracker struct {
	participations ParticipationLookup
}

func NewTracker(participations ParticipationLookup) *Tracker {
	return &Tracker{participations: participations}
}

// CreditReferral validates a referral for newUserID. An accepted referral
// yields a claim that the join transaction applies with a conditional
// increment, so the cap holds under concurrent joins even though the count
// read here may be stale. Rejections never fail the join.
func (t *Tracker) CreditReferral(ctx context.Context, giveawayID string, referrerID, newUserID int64, inviteMax int) (*dp.ReferralClaim, Outcome, error) {
	if referrerID == newUserID {
		return nil, OutcomeSelfReferral, nil
	}

	ref, err := t.participations.Get(ctx, giveawayID, referrerID)
	if errors.Is(err, dp.ErrNotFound) {
		return nil, OutcomeReferrerNotJoined, nil
	}
	if err != nil {
		return nil, 0, apperrors.NewDatabaseError("load referrer participation", err)
	}
	if ref.Status != dp.StatusJoined {
		return nil, OutcomeReferrerNotJoined, nil
	}

	if ref.ReferralsCredited >= inviteMax {
		logger.Debug().
			Str("giveaway_id", giveawayID).
			Int64("referrer_id", referrerID).
			Int("invite_max", inviteMax).
			Msg("referral cap reached")
		return nil, OutcomeCapReached, nil
	}
	return &dp.ReferralClaim{ReferrerUserID: referrerID, InviteMax: inviteMax}, OutcomeAccepted, nil
}
