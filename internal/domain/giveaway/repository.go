package giveaway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("giveaway not found")
	ErrTaskNotFound = errors.New("task not found")
	// ErrStatusConflict is returned when a compare-and-set on status loses.
	ErrStatusConflict = errors.New("giveaway status changed concurrently")
)

// Repository defines persistence operations for the Giveaway aggregate.
type Repository interface {
	Create(ctx context.Context, g *Giveaway) error
	GetByID(ctx context.Context, id string) (*Giveaway, error)
	// UpdateStatus moves id from -> to only if the stored status still equals from.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
	// UpdateCondition replaces the rules only while the status is pre-launch.
	UpdateCondition(ctx context.Context, id string, c Condition) error
	ListScheduledDue(ctx context.Context, now time.Time) ([]string, error)
	ListActiveExpired(ctx context.Context, now time.Time) ([]string, error)

	AddTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, giveawayID, taskID string) (*Task, error)
	ListTasks(ctx context.Context, giveawayID string) ([]Task, error)
}
