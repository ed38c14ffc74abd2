package story

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status of a story moderation request.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusApproved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusApproved:
		return "APPROVED"
	case StatusRejected:
		return "REJECTED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "PENDING":
		return StatusPending, nil
	case "APPROVED":
		return StatusApproved, nil
	case "REJECTED":
		return StatusRejected, nil
	}
	return 0, fmt.Errorf("unknown story status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if s < StatusPending || s > StatusRejected {
		return nil, fmt.Errorf("invalid story status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Request is a social proof submission awaiting the giveaway owner's review.
type Request struct {
	ID              string     `json:"id"`
	ParticipationID string     `json:"participation_id"`
	GiveawayID      string     `json:"giveaway_id"`
	UserID          int64      `json:"user_id"`
	Status          Status     `json:"status"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy      *int64     `json:"reviewed_by,omitempty"`
	RejectReason    string     `json:"reject_reason,omitempty"`
}

var (
	ErrNotFound        = errors.New("story request not found")
	ErrAlreadyApproved = errors.New("story request already approved")
	ErrAlreadyPending  = errors.New("story request already pending")
	ErrNotPending      = errors.New("story request is not pending")
)

// Repository persists story requests. At most one request exists per participation.
type Repository interface {
	// Submit inserts r, deleting supersedes first when it names a REJECTED request.
	Submit(ctx context.Context, r *Request, supersedes string) error
	GetByID(ctx context.Context, id string) (*Request, error)
	GetByParticipation(ctx context.Context, participationID string) (*Request, error)
	// Approve moves a PENDING request to APPROVED and credits the linked
	// participation in the same transaction.
	Approve(ctx context.Context, id string, reviewerID int64, at time.Time) error
	Reject(ctx context.Context, id string, reviewerID int64, reason string, at time.Time) error
}
