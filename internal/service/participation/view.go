package participation

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
)

// View is the participant-facing read model of a ledger entry.
type View struct {
	ParticipationID   string           `json:"participation_id"`
	GiveawayID        string           `json:"giveaway_id"`
	UserID            int64            `json:"user_id"`
	Status            dp.Status        `json:"status"`
	TicketsBase       int              `json:"tickets_base"`
	TicketsExtra      int              `json:"tickets_extra"`
	TotalTickets      int              `json:"total_tickets"`
	Boosts            dp.BoostSnapshot `json:"boosts"`
	BoostedChannelIDs []int64          `json:"boosted_channel_ids"`
	StoriesShared     bool             `json:"stories_shared"`
	ReferralsCredited int              `json:"referrals_credited"`
	ReferrerUserID    *int64           `json:"referrer_user_id,omitempty"`
	FraudScore        int              `json:"fraud_score"`
	JoinedAt          time.Time        `json:"joined_at"`
}

func newView(p *dp.Participation) *View {
	return &View{
		ParticipationID:   p.ID,
		GiveawayID:        p.GiveawayID,
		UserID:            p.UserID,
		Status:            p.Status,
		TicketsBase:       p.TicketsBase,
		TicketsExtra:      p.TicketsExtra,
		TotalTickets:      p.TotalTickets(),
		Boosts:            p.Boosts,
		BoostedChannelIDs: p.Boosts.Channels(),
		StoriesShared:     p.StoriesShared,
		ReferralsCredited: p.ReferralsCredited,
		ReferrerUserID:    p.ReferrerUserID,
		FraudScore:        p.FraudScore,
		JoinedAt:          p.JoinedAt,
	}
}

// GetParticipation returns userID's entry in giveawayID.
func (l *Ledger) GetParticipation(ctx context.Context, giveawayID string, userID int64) (*View, error) {
	p, err := l.participations.Get(ctx, giveawayID, userID)
	if errors.Is(err, dp.ErrNotFound) {
		return nil, apperrors.NewParticipationNotFoundError(giveawayID, userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load participation", err)
	}
	return newView(p), nil
}
