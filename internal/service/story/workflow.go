// Package story moderates social proof submissions and credits approved ones.
package story

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
)

const maxReasonLength = 500

var tracer = otel.Tracer("github.com/open-builders/giveaway-tickets/internal/service/story")

type Workflow struct {
	giveaways      dg.Repository
	participations dp.Repository
	stories        ds.Repository
	now            func() time.Time
}

func NewWorkflow(giveaways dg.Repository, participations dp.Repository, stories ds.Repository) *Workflow {
	return &Workflow{giveaways: giveaways, participations: participations, stories: stories, now: time.Now}
}

// Submit opens a PENDING request for the user's participation. A previously
// REJECTED request is replaced; PENDING and APPROVED ones block resubmission.
func (w *Workflow) Submit(ctx context.Context, giveawayID string, userID int64) (*ds.Request, error) {
	ctx, span := tracer.Start(ctx, "story.Submit")
	defer span.End()

	g, err := w.loadGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.Condition.StoriesEnabled {
		return nil, apperrors.New(apperrors.ErrCodeStoriesDisabled, "Stories are not enabled for this giveaway")
	}
	if g.Status != dg.StatusActive {
		return nil, apperrors.New(apperrors.ErrCodeGiveawayNotActive, "Giveaway is not active").
			WithDetail("status", g.Status.String())
	}

	p, err := w.participations.Get(ctx, giveawayID, userID)
	if errors.Is(err, dp.ErrNotFound) {
		return nil, apperrors.NewParticipationNotFoundError(giveawayID, userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load participation", err)
	}

	var supersedes string
	existing, err := w.stories.GetByParticipation(ctx, p.ID)
	switch {
	case errors.Is(err, ds.ErrNotFound):
	case err != nil:
		return nil, apperrors.NewDatabaseError("load story request", err)
	default:
		switch existing.Status {
		case ds.StatusApproved:
			return nil, storyError(ds.ErrAlreadyApproved)
		case ds.StatusPending:
			return nil, storyError(ds.ErrAlreadyPending)
		case ds.StatusRejected:
			supersedes = existing.ID
		}
	}

	req := &ds.Request{
		ID:              uuid.NewString(),
		ParticipationID: p.ID,
		GiveawayID:      giveawayID,
		UserID:          userID,
		Status:          ds.StatusPending,
		SubmittedAt:     w.now().UTC(),
	}
	if err := w.stories.Submit(ctx, req, supersedes); err != nil {
		return nil, storyError(err)
	}
	span.SetAttributes(attribute.String("story.id", req.ID))
	logger.Info().Str("story_id", req.ID).Str("giveaway_id", giveawayID).Int64("user_id", userID).Msg("story submitted")
	return req, nil
}

// Approve credits the participation with one ticket. Only the giveaway owner may approve.
func (w *Workflow) Approve(ctx context.Context, giveawayID, requestID string, reviewerID int64) (*ds.Request, error) {
	ctx, span := tracer.Start(ctx, "story.Approve")
	defer span.End()

	if _, err := w.authorize(ctx, giveawayID, requestID, reviewerID); err != nil {
		return nil, err
	}
	if err := w.stories.Approve(ctx, requestID, reviewerID, w.now().UTC()); err != nil {
		return nil, storyError(err)
	}
	logger.Info().Str("story_id", requestID).Int64("reviewer_id", reviewerID).Msg("story approved")
	return w.reload(ctx, requestID)
}

// Reject closes a PENDING request without any ticket effect.
func (w *Workflow) Reject(ctx context.Context, giveawayID, requestID string, reviewerID int64, reason string) (*ds.Request, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, apperrors.NewValidationError("reason", "must be at most 500 characters")
	}
	if _, err := w.authorize(ctx, giveawayID, requestID, reviewerID); err != nil {
		return nil, err
	}
	if err := w.stories.Reject(ctx, requestID, reviewerID, reason, w.now().UTC()); err != nil {
		return nil, storyError(err)
	}
	logger.Info().Str("story_id", requestID).Int64("reviewer_id", reviewerID).Msg("story rejected")
	return w.reload(ctx, requestID)
}

func (w *Workflow) authorize(ctx context.Context, giveawayID, requestID string, reviewerID int64) (*ds.Request, error) {
	g, err := w.loadGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != reviewerID {
		return nil, apperrors.NewForbiddenError("only the giveaway owner can moderate stories")
	}
	req, err := w.stories.GetByID(ctx, requestID)
	if err != nil {
		return nil, storyError(err)
	}
	if req.GiveawayID != giveawayID {
		return nil, storyError(ds.ErrNotFound)
	}
	return req, nil
}

func (w *Workflow) reload(ctx context.Context, requestID string) (*ds.Request, error) {
	req, err := w.stories.GetByID(ctx, requestID)
	if err != nil {
		return nil, storyError(err)
	}
	return req, nil
}

func (w *Workflow) loadGiveaway(ctx context.Context, id string) (*dg.Giveaway, error) {
	g, err := w.giveaways.GetByID(ctx, id)
	if errors.Is(err, dg.ErrNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load giveaway", err)
	}
	return g, nil
}

func storyError(err error) error {
	switch {
	case errors.Is(err, ds.ErrNotFound), errors.Is(err, dp.ErrNotFound):
		return apperrors.New(apperrors.ErrCodeStoryNotFound, "Story request not found")
	case errors.Is(err, ds.ErrAlreadyApproved):
		return apperrors.New(apperrors.ErrCodeStoryAlreadyApproved, "Story already approved")
	case errors.Is(err, ds.ErrAlreadyPending):
		return apperrors.New(apperrors.ErrCodeStoryAlreadyPending, "Story is already awaiting review")
	case errors.Is(err, ds.ErrNotPending):
		return apperrors.New(apperrors.ErrCodeStoryNotPending, "Story request is not pending")
	}
	return apperrors.NewDatabaseError("story request", err)
}
