// Package task manages owner-defined tasks that award extra tickets.
package task

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	"github.com/open-builders/giveaway-tickets/internal/common/logger"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
)

const (
	maxTitleLength    = 100
	maxTicketsPerTask = 100
)

// AddInput describes a new task.
type AddInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Tickets     int    `json:"tickets"`
}

func (in AddInput) validate() error {
	title := strings.TrimSpace(in.Title)
	if title == "" || len(title) > maxTitleLength {
		return apperrors.NewValidationError("title", "must be 1-100 characters")
	}
	if in.Tickets < 1 || in.Tickets > maxTicketsPerTask {
		return apperrors.NewValidationError("tickets", "must be between 1 and 100")
	}
	if in.URL != "" {
		u, err := url.Parse(in.URL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return apperrors.NewValidationError("url", "must be an absolute http(s) URL")
		}
	}
	return nil
}

// CompleteResult reports the credit for a completed task.
type CompleteResult struct {
	TaskID       string `json:"task_id"`
	TicketsAdded int    `json:"tickets_added"`
	TotalTickets int    `json:"total_tickets"`
}

type Service struct {
	giveaways      dg.Repository
	participations dp.Repository
	isAdmin        func(int64) bool
	now            func() time.Time
}

func NewService(giveaways dg.Repository, participations dp.Repository, isAdmin func(int64) bool) *Service {
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	return &Service{giveaways: giveaways, participations: participations, isAdmin: isAdmin, now: time.Now}
}

// AddTask attaches a task to a giveaway that has not launched yet.
func (s *Service) AddTask(ctx context.Context, giveawayID string, requesterID int64, in AddInput) (*dg.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	g, err := s.loadGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if g.OwnerID != requesterID && !s.isAdmin(requesterID) {
		return nil, apperrors.NewForbiddenError("only the giveaway owner can add tasks")
	}
	if !g.Status.PreLaunch() {
		return nil, apperrors.New(apperrors.ErrCodeConditionLocked, "Tasks cannot be changed after launch").
			WithDetail("status", g.Status.String())
	}

	t := &dg.Task{
		ID:          uuid.NewString(),
		GiveawayID:  giveawayID,
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		URL:         in.URL,
		Tickets:     in.Tickets,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.giveaways.AddTask(ctx, t); err != nil {
		if errors.Is(err, dg.ErrNotFound) {
			return nil, apperrors.NewGiveawayNotFoundError(giveawayID)
		}
		return nil, apperrors.NewDatabaseError("add task", err)
	}
	return t, nil
}

func (s *Service) ListTasks(ctx context.Context, giveawayID string) ([]dg.Task, error) {
	if _, err := s.loadGiveaway(ctx, giveawayID); err != nil {
		return nil, err
	}
	tasks, err := s.giveaways.ListTasks(ctx, giveawayID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list tasks", err)
	}
	return tasks, nil
}

// CompleteTask credits task.Tickets the first time a participant completes it.
func (s *Service) CompleteTask(ctx context.Context, giveawayID string, userID int64, taskID string) (*CompleteResult, error) {
	g, err := s.loadGiveaway(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if g.Status != dg.StatusActive {
		return nil, apperrors.New(apperrors.ErrCodeGiveawayNotActive, "Giveaway is not active").
			WithDetail("status", g.Status.String())
	}

	t, err := s.giveaways.GetTask(ctx, giveawayID, taskID)
	if errors.Is(err, dg.ErrTaskNotFound) {
		return nil, apperrors.New(apperrors.ErrCodeTaskNotFound, "Task not found").WithDetail("task_id", taskID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load task", err)
	}

	p, err := s.participations.Get(ctx, giveawayID, userID)
	if errors.Is(err, dp.ErrNotFound) {
		return nil, apperrors.NewParticipationNotFoundError(giveawayID, userID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load participation", err)
	}

	err = s.participations.CompleteTask(ctx, p.ID, t.ID, t.Tickets)
	if errors.Is(err, dp.ErrTaskAlreadyCompleted) {
		return nil, apperrors.New(apperrors.ErrCodeTaskAlreadyCompleted, "Task already completed").WithDetail("task_id", taskID)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("complete task", err)
	}

	logger.Info().Str("participation_id", p.ID).Str("task_id", t.ID).Int("tickets", t.Tickets).Msg("task completed")
	return &CompleteResult{TaskID: t.ID, TicketsAdded: t.Tickets, TotalTickets: p.TotalTickets() + t.Tickets}, nil
}

func (s *Service) loadGiveaway(ctx context.Context, id string) (*dg.Giveaway, error) {
	g, err := s.giveaways.GetByID(ctx, id)
	if errors.Is(err, dg.ErrNotFound) {
		return nil, apperrors.NewGiveawayNotFoundError(id)
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError("load giveaway", err)
	}
	return g, nil
}
