package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
)

func newParticipation() *dp.Participation {
	now := time.Now().UTC()
	return &dp.Participation{
		ID:          "0b9f4d55-5f57-4a43-8c53-1a3c1b9f0c01",
		GiveawayID:  "8f0e3c3e-25c4-4f3f-a0a7-3b5ad2a4e8d2",
		UserID:      42,
		Status:      dp.StatusJoined,
		TicketsBase: 1,
		Conditions:  dp.NewConditionsSnapshot(dg.Condition{CaptchaMode: dg.CaptchaOff}, false, now),
		JoinedAt:    now,
	}
}

func TestJoinDuplicateRollsBackWithoutSideEffects(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO participations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	repo := NewParticipationRepository(db)
	_, err = repo.Join(context.Background(), newParticipation(), &dp.ReferralClaim{ReferrerUserID: 7, InviteMax: 10})

	assert.ErrorIs(t, err, dp.ErrAlreadyJoined)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO participations").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err = NewParticipationRepository(db).Join(context.Background(), newParticipation(), nil)

	assert.ErrorIs(t, err, dp.ErrAlreadyJoined)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinCreditsReferrerUnderCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO participations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`referrals_credited < \$4`).
		WithArgs("8f0e3c3e-25c4-4f3f-a0a7-3b5ad2a4e8d2", int64(7), "JOINED", 10).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("SET referrer_user_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("participants_count = participants_count \\+ 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := newParticipation()
	res, err := NewParticipationRepository(db).Join(context.Background(), p, &dp.ReferralClaim{ReferrerUserID: 7, InviteMax: 10})

	require.NoError(t, err)
	assert.True(t, res.ReferralCredited)
	require.NotNil(t, p.ReferrerUserID)
	assert.Equal(t, int64(7), *p.ReferrerUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJoinIgnoresReferralAtCap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO participations").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`referrals_credited < \$4`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("participants_count = participants_count \\+ 1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := newParticipation()
	res, err := NewParticipationRepository(db).Join(context.Background(), p, &dp.ReferralClaim{ReferrerUserID: 7, InviteMax: 10})

	require.NoError(t, err)
	assert.False(t, res.ReferralCredited)
	assert.Nil(t, p.ReferrerUserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBoostConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE participation_boosts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = NewParticipationRepository(db).ApplyBoost(context.Background(), dp.BoostCredit{
		ParticipationID: "p", ChannelID: -100, Previous: 3, Observed: 7, TicketsToAdd: 4,
	})

	assert.ErrorIs(t, err, dp.ErrBoostConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoryApproveTwiceReportsAlreadyApproved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE story_requests").WillReturnRows(sqlmock.NewRows([]string{"participation_id"}))
	mock.ExpectQuery("SELECT status FROM story_requests").WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectRollback()

	err = NewStoryRepository(db).Approve(context.Background(), "s1", 1, time.Now())

	assert.ErrorIs(t, err, ds.ErrAlreadyApproved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusLostCAS(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE giveaways SET status").
		WithArgs("g1", "PENDING_CONFIRM", "ACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = NewGiveawayRepository(db).UpdateStatus(context.Background(), "g1", dg.StatusPendingConfirm, dg.StatusActive)

	assert.ErrorIs(t, err, dg.ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
