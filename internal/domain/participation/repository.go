package participation

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("participation not found")
	ErrAlreadyJoined = errors.New("user already joined this giveaway")
	// ErrBoostConflict means the stored boost count moved between read and write.
	ErrBoostConflict        = errors.New("boost snapshot changed concurrently")
	ErrTaskAlreadyCompleted = errors.New("task already completed")
)

// ReferralClaim asks the store to credit a referrer while creating the referee.
// The credit is applied only if the referrer is below InviteMax at write time.
type ReferralClaim struct {
	ReferrerUserID int64
	InviteMax      int
}

// JoinResult reports side effects of a successful join.
type JoinResult struct {
	ReferralCredited bool
}

// BoostCredit is a compare-and-set update of one channel's boost snapshot.
type BoostCredit struct {
	ParticipationID string
	ChannelID       int64
	Previous        int
	Observed        int
	TicketsToAdd    int
}

// Repository persists participations. Join must enforce one row per
// (giveaway, user) at the storage layer and apply every side effect atomically.
type Repository interface {
	Join(ctx context.Context, p *Participation, claim *ReferralClaim) (JoinResult, error)
	Get(ctx context.Context, giveawayID string, userID int64) (*Participation, error)
	GetByID(ctx context.Context, id string) (*Participation, error)
	CountJoinsSince(ctx context.Context, userID int64, since time.Time) (int, error)
	// ListActiveByUser returns the user's participations in ACTIVE giveaways.
	ListActiveByUser(ctx context.Context, userID int64) ([]*Participation, error)
	ApplyBoost(ctx context.Context, credit BoostCredit) error
	CompleteTask(ctx context.Context, participationID, taskID string, tickets int) error
}
