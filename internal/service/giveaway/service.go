package giveaway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
)

const (
	maxTitleLength = 100
	minDuration    = 5 * time.Minute
)

// CreateInput is the owner-supplied part of a new giveaway.
type CreateInput struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	StartAt      *time.Time   `json:"start_at,omitempty"`
	EndAt        *time.Time   `json:"end_at,omitempty"`
	WinnersCount int          `json:"winners_count"`
	Condition    dg.Condition `json:"condition"`
}

// Service contains lifecycle rules for giveaways.
type Service struct {
	repo    dg.Repository
	isAdmin func(int64) bool
	now     func() time.Time
}

func NewService(r dg.Repository, isAdmin func(int64) bool) *Service {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Service{repo: r, isAdmin: isAdmin, now: time.Now}
}

func (s *Service) validate(in CreateInput) (dg.Condition, error) {
	now := s.now()
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxTitleLength {
		return dg.Condition{}, apperrors.NewValidationError("title", "must be 1-100 characters")
	}
	if in.WinnersCount <= 0 {
		return dg.Condition{}, apperrors.NewValidationError("winners_count", "must be > 0")
	}
	if in.StartAt != nil && in.StartAt.Before(now.Add(-time.Hour)) {
		return dg.Condition{}, apperrors.NewValidationError("start_at", "is too far in the past")
	}
	if in.EndAt != nil {
		if !in.EndAt.After(now) {
			return dg.Condition{}, apperrors.NewValidationError("end_at", "must be in the future")
		}
		start := now
		if in.StartAt != nil {
			start = *in.StartAt
		}
		if in.EndAt.Sub(start) < minDuration {
			return dg.Condition{}, apperrors.NewValidationError("end_at", "giveaway must last at least 5 minutes")
		}
	}
	c := in.Condition.Normalize()
	if err := c.Validate(); err != nil {
		return dg.Condition{}, apperrors.NewValidationError("condition", err.Error())
	}
	return c, nil
}

// Create validates and persists a new DRAFT giveaway.
func (s *Service) Create(ctx context.Context, ownerID int64, in CreateInput) (*dg.Giveaway, error) {
	if ownerID == 0 {
		return nil, apperrors.NewValidationError("owner_id", "is required")
	}
	c, err := s.validate(in)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	g := &dg.Giveaway{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Status:       dg.StatusDraft,
		StartAt:      in.StartAt,
		EndAt:        in.EndAt,
		WinnersCount: in.WinnersCount,
		Condition:    c,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, apperrors.NewDatabaseError("create giveaway", err)
	}
	logger.Info().Str("giveaway_id", g.ID).Int64("owner_id", ownerID).Msg("giveaway created")
	return g, nil
}

// Get fetches a giveaway by id.
func (s *Service) Get(ctx context.Context, id string) (*dg.Giveaway, error) {
	g, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, dg.ErrNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load giveaway", err)
	}
	return g, nil
}

// CheckJoinable returns the giveaway if it accepts joins right now.
func (s *Service) CheckJoinable(ctx context.Context, id string) (*dg.Giveaway, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status != dg.StatusActive {
		return nil, apperrors.New(apperrors.ErrCodeGiveawayNotActive, "Giveaway is not active").
			WithDetail("status", g.Status.String())
	}
	if g.Expired(s.now()) {
		return nil, apperrors.New(apperrors.ErrCodeGiveawayExpired, "Giveaway has ended")
	}
	return g, nil
}

// SubmitForConfirmation moves a DRAFT to PENDING_CONFIRM.
func (s *Service) SubmitForConfirmation(ctx context.Context, id string, requesterID int64) (*dg.Giveaway, error) {
	return s.transition(ctx, id, requesterID, func(*dg.Giveaway) (dg.Status, error) { return dg.StatusPendingConfirm, nil })
}

// Accept launches a PENDING_CONFIRM giveaway: ACTIVE when start_at is unset or
// already reached, SCHEDULED otherwise.
func (s *Service) Accept(ctx context.Context, id string, requesterID int64) (*dg.Giveaway, error) {
	return s.transition(ctx, id, requesterID, func(g *dg.Giveaway) (dg.Status, error) {
		if err := requirePendingConfirm(g, dg.StatusActive.String()); err != nil {
			return 0, err
		}
		if g.StartAt == nil || !g.StartAt.After(s.now()) {
			return dg.StatusActive, nil
		}
		return dg.StatusScheduled, nil
	})
}

// Reject returns a PENDING_CONFIRM giveaway to DRAFT.
func (s *Service) Reject(ctx context.Context, id string, requesterID int64) (*dg.Giveaway, error) {
	return s.transition(ctx, id, requesterID, func(g *dg.Giveaway) (dg.Status, error) {
		if err := requirePendingConfirm(g, dg.StatusDraft.String()); err != nil {
			return 0, err
		}
		return dg.StatusDraft, nil
	})
}

// Cancel stops a giveaway from any non-terminal status.
func (s *Service) Cancel(ctx context.Context, id string, requesterID int64) (*dg.Giveaway, error) {
	return s.transition(ctx, id, requesterID, func(*dg.Giveaway) (dg.Status, error) { return dg.StatusCancelled, nil })
}

// MarkFailed moves a SCHEDULED or ACTIVE giveaway to ERROR. It is a system
// action and skips the ownership check.
func (s *Service) MarkFailed(ctx context.Context, id, reason string) error {
	g, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.compareAndSet(ctx, g, dg.StatusError); err != nil {
		return err
	}
	logger.Error().Str("giveaway_id", id).Str("reason", reason).Msg("giveaway marked as failed")
	return nil
}

// UpdateCondition replaces the rules of a giveaway that has not launched yet.
func (s *Service) UpdateCondition(ctx context.Context, id string, requesterID int64, c dg.Condition) (*dg.Giveaway, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, apperrors.NewValidationError("condition", err.Error())
	}
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(g, requesterID); err != nil {
		return nil, err
	}
	locked := apperrors.New(apperrors.ErrCodeConditionLocked, "Conditions cannot be changed after launch")
	if !g.Status.PreLaunch() {
		return nil, locked.WithDetail("status", g.Status.String())
	}
	err = s.repo.UpdateCondition(ctx, id, c)
	switch {
	case errors.Is(err, dg.ErrStatusConflict):
		return nil, locked
	case errors.Is(err, dg.ErrNotFound):
		return nil, apperrors.NewGiveawayNotFoundError(id)
	case err != nil:
		return nil, apperrors.NewDatabaseError("update condition", err)
	}
	return s.Get(ctx, id)
}

// ActivateDue starts every SCHEDULED giveaway whose start time has passed.
func (s *Service) ActivateDue(ctx context.Context) (int, error) {
	ids, err := s.repo.ListScheduledDue(ctx, s.now())
	if err != nil {
		return 0, apperrors.NewDatabaseError("list scheduled giveaways", err)
	}
	return s.advance(ctx, ids, dg.StatusScheduled, dg.StatusActive), nil
}

// FinishExpired closes every ACTIVE giveaway whose end time has passed.
func (s *Service) FinishExpired(ctx context.Context) (int, error) {
	ids, err := s.repo.ListActiveExpired(ctx, s.now())
	if err != nil {
		return 0, apperrors.NewDatabaseError("list expired giveaways", err)
	}
	return s.advance(ctx, ids, dg.StatusActive, dg.StatusFinished), nil
}

func (s *Service) advance(ctx context.Context, ids []string, from, to dg.Status) int {
	moved := 0
	for _, id := range ids {
		err := s.repo.UpdateStatus(ctx, id, from, to)
		switch {
		case err == nil:
			moved++
			logger.Info().Str("giveaway_id", id).Str("from", from.String()).Str("to", to.String()).Msg("giveaway status advanced")
		case errors.Is(err, dg.ErrStatusConflict), errors.Is(err, dg.ErrNotFound):
			// Moved by someone else since the listing.
		default:
			logger.Error().Err(err).Str("giveaway_id", id).Msg("failed to advance giveaway status")
		}
	}
	return moved
}

func (s *Service) authorize(g *dg.Giveaway, requesterID int64) error {
	if g.OwnerID != requesterID && !s.isAdmin(requesterID) {
		return apperrors.NewForbiddenError("only the giveaway owner can manage it")
	}
	return nil
}

func (s *Service) transition(ctx context.Context, id string, requesterID int64, next func(*dg.Giveaway) (dg.Status, error)) (*dg.Giveaway, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(g, requesterID); err != nil {
		return nil, err
	}
	to, err := next(g)
	if err != nil {
		return nil, err
	}
	if err := s.compareAndSet(ctx, g, to); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Only PENDING_CONFIRM giveaways can be accepted or rejected.
func requirePendingConfirm(g *dg.Giveaway, to string) error {
	if g.Status != dg.StatusPendingConfirm {
		return apperrors.NewInvalidTransitionError(g.Status.String(), to)
	}
	return nil
}

func (s *Service) compareAndSet(ctx context.Context, g *dg.Giveaway, to dg.Status) error {
	if !g.Status.CanTransition(to) {
		return apperrors.NewInvalidTransitionError(g.Status.String(), to.String())
	}
	err := s.repo.UpdateStatus(ctx, g.ID, g.Status, to)
	switch {
	case errors.Is(err, dg.ErrStatusConflict):
		return apperrors.NewInvalidTransitionError(g.Status.String(), to.String()).
			WithDetail("reason", "status changed concurrently")
	case errors.Is(err, dg.ErrNotFound):
		return apperrors.NewGiveawayNotFoundError(g.ID)
	case err != nil:
		return apperrors.NewDatabaseError("update giveaway status", err)
	}
	logger.Info().Str("giveaway_id", g.ID).Str("from", g.Status.String()).Str("to", to.String()).Msg("giveaway status changed")
	return nil
}
