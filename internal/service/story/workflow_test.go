package story

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/open-builders/giveaway-tickets/internal/common/errors"
	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
	"github.com/open-builders/giveaway-tickets/internal/repository/memory"
)

const owner int64 = 1

func setup(t *testing.T, storiesEnabled bool) (*memory.Store, *Workflow) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Giveaways.Create(ctx, &dg.Giveaway{
		ID:        "g1",
		OwnerID:   owner,
		Status:    dg.StatusActive,
		Condition: dg.Condition{CaptchaMode: dg.CaptchaOff, StoriesEnabled: storiesEnabled},
	}))
	_, err := store.Participations.Join(ctx, &dp.Participation{
		ID: "p1", GiveawayID: "g1", UserID: 42, Status: dp.StatusJoined, TicketsBase: 1, JoinedAt: time.Now(),
	}, nil)
	require.NoError(t, err)
	return store, NewWorkflow(store.Giveaways, store.Participations, store.Stories)
}

func TestSubmitApproveCreditsOnce(t *testing.T) {
	ctx := context.Background()
	store, wf := setup(t, true)

	req, err := wf.Submit(ctx, "g1", 42)
	require.NoError(t, err)
	assert.Equal(t, ds.StatusPending, req.Status)

	_, err = wf.Submit(ctx, "g1", 42)
	assert.Equal(t, apperrors.ErrCodeStoryAlreadyPending, apperrors.CodeOf(err))

	approved, err := wf.Approve(ctx, "g1", req.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, ds.StatusApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, owner, *approved.ReviewedBy)

	_, err = wf.Approve(ctx, "g1", req.ID, owner)
	assert.Equal(t, apperrors.ErrCodeStoryAlreadyApproved, apperrors.CodeOf(err))

	_, err = wf.Submit(ctx, "g1", 42)
	assert.Equal(t, apperrors.ErrCodeStoryAlreadyApproved, apperrors.CodeOf(err))

	p, err := store.Participations.Get(ctx, "g1", 42)
	require.NoError(t, err)
	assert.True(t, p.StoriesShared)
	assert.Equal(t, 1, p.TicketsExtra)
}

func TestRejectThenResubmit(t *testing.T) {
	ctx := context.Background()
	store, wf := setup(t, true)

	req, err := wf.Submit(ctx, "g1", 42)
	require.NoError(t, err)

	rejected, err := wf.Reject(ctx, "g1", req.ID, owner, "  story was deleted  ")
	require.NoError(t, err)
	assert.Equal(t, ds.StatusRejected, rejected.Status)
	assert.Equal(t, "story was deleted", rejected.RejectReason)

	_, err = wf.Reject(ctx, "g1", req.ID, owner, "")
	assert.Equal(t, apperrors.ErrCodeStoryNotPending, apperrors.CodeOf(err))

	again, err := wf.Submit(ctx, "g1", 42)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, again.ID)

	_, err = store.Stories.GetByID(ctx, req.ID)
	assert.ErrorIs(t, err, ds.ErrNotFound)

	p, err := store.Participations.Get(ctx, "g1", 42)
	require.NoError(t, err)
	assert.Equal(t, 0, p.TicketsExtra)
}

func TestModerationRequiresOwnerAndMatchingGiveaway(t *testing.T) {
	ctx := context.Background()
	store, wf := setup(t, true)
	require.NoError(t, store.Giveaways.Create(ctx, &dg.Giveaway{ID: "g2", OwnerID: 99, Status: dg.StatusActive}))

	req, err := wf.Submit(ctx, "g1", 42)
	require.NoError(t, err)

	_, err = wf.Approve(ctx, "g1", req.ID, 42)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.CodeOf(err))

	_, err = wf.Approve(ctx, "g2", req.ID, 99)
	assert.Equal(t, apperrors.ErrCodeStoryNotFound, apperrors.CodeOf(err))

	_, err = wf.Approve(ctx, "g1", "missing", owner)
	assert.Equal(t, apperrors.ErrCodeStoryNotFound, apperrors.CodeOf(err))
}

func TestSubmitPreconditions(t *testing.T) {
	ctx := context.Background()
	_, wf := setup(t, false)

	_, err := wf.Submit(ctx, "g1", 42)
	assert.Equal(t, apperrors.ErrCodeStoriesDisabled, apperrors.CodeOf(err))

	_, wf = setup(t, true)
	_, err = wf.Submit(ctx, "g1", 7)
	assert.Equal(t, apperrors.ErrCodeParticipationNotFound, apperrors.CodeOf(err))

	_, err = wf.Submit(ctx, "nope", 42)
	assert.Equal(t, apperrors.ErrCodeGiveawayNotFound, apperrors.CodeOf(err))
}
