package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	"github.com/open-builders/giveaway-tickets/internal/repository/memory"
)

const owner int64 = 1

func TestAddTaskValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Giveaways.Create(ctx, &dg.Giveaway{ID: "g1", OwnerID: owner, Status: dg.StatusDraft}))
	svc := NewService(store.Giveaways, store.Participations, func(id int64) bool { return id == 500 })

	tests := []struct {
		name      string
		requester int64
		in        AddInput
		code      apperrors.ErrorCode
	}{
		{"empty title", owner, AddInput{Tickets: 1}, apperrors.ErrCodeValidation},
		{"zero tickets", owner, AddInput{Title: "Follow", Tickets: 0}, apperrors.ErrCodeValidation},
		{"bad url", owner, AddInput{Title: "Follow", Tickets: 1, URL: "ftp://x"}, apperrors.ErrCodeValidation},
		{"stranger", 7, AddInput{Title: "Follow", Tickets: 1}, apperrors.ErrCodeForbidden},
		{"owner", owner, AddInput{Title: " Follow ", Tickets: 2, URL: "https://t.me/channel"}, ""},
		{"admin", 500, AddInput{Title: "Repost", Tickets: 1}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := svc.AddTask(ctx, "g1", tt.requester, tt.in)
			if tt.code != "" {
				assert.Equal(t, tt.code, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, task.ID)
		})
	}

	tasks, err := svc.ListTasks(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Follow", tasks[0].Title)
}

func TestAddTaskLockedAfterLaunch(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Giveaways.Create(ctx, &dg.Giveaway{ID: "g1", OwnerID: owner, Status: dg.StatusActive}))

	_, err := NewService(store.Giveaways, store.Participations, nil).AddTask(ctx, "g1", owner, AddInput{Title: "x", Tickets: 1})
	assert.Equal(t, apperrors.ErrCodeConditionLocked, apperrors.CodeOf(err))
}

func TestCompleteTaskCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Giveaways.Create(ctx, &dg.Giveaway{ID: "g1", OwnerID: owner, Status: dg.StatusDraft}))
	svc := NewService(store.Giveaways, store.Participations, nil)

	task, err := svc.AddTask(ctx, "g1", owner, AddInput{Title: "Follow", Tickets: 3})
	require.NoError(t, err)
	require.NoError(t, store.Giveaways.UpdateStatus(ctx, "g1", dg.StatusDraft, dg.StatusActive))

	_, err = svc.CompleteTask(ctx, "g1", 42, task.ID)
	assert.Equal(t, apperrors.ErrCodeParticipationNotFound, apperrors.CodeOf(err))

	_, err = store.Participations.Join(ctx, &dp.Participation{
		ID: "p1", GiveawayID: "g1", UserID: 42, Status: dp.StatusJoined, TicketsBase: 1, JoinedAt: time.Now(),
	}, nil)
	require.NoError(t, err)

	res, err := svc.CompleteTask(ctx, "g1", 42, task.ID)
	require.NoError(t, err)
	assert.Equal(t, CompleteResult{TaskID: task.ID, TicketsAdded: 3, TotalTickets: 4}, *res)

	_, err = svc.CompleteTask(ctx, "g1", 42, task.ID)
	assert.Equal(t, apperrors.ErrCodeTaskAlreadyCompleted, apperrors.CodeOf(err))

	_, err = svc.CompleteTask(ctx, "g1", 42, "missing")
	assert.Equal(t, apperrors.ErrCodeTaskNotFound, apperrors.CodeOf(err))

	p, err := store.Participations.Get(ctx, "g1", 42)
	require.NoError(t, err)
	assert.Equal(t, 3, p.TicketsExtra)
}
