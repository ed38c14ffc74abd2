package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
)

const storyColumns = `id, participation_id, giveaway_id, user_id, status, submitted_at, reviewed_at, reviewed_by, reject_reason`

// StoryRepository persists story moderation requests.
type StoryRepository struct {
	db *sql.DB
}

var _ ds.Repository = (*StoryRepository)(nil)

func NewStoryRepository(db *sql.DB) *StoryRepository { return &StoryRepository{db: db} }

func (r *StoryRepository) Submit(ctx context.Context, req *ds.Request, supersedes string) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if supersedes != "" {
		res, err2 := tx.ExecContext(ctx, `DELETE FROM story_requests WHERE id=$1 AND status=$2`, supersedes, ds.StatusRejected.String())
		if err2 != nil {
			err = err2
			return err
		}
		n, err2 := res.RowsAffected()
		if err2 != nil {
			err = err2
			return err
		}
		if n == 0 {
			// Someone resubmitted first.
			err = ds.ErrAlreadyPending
			return err
		}
	}

	const q = `
	INSERT INTO story_requests (` + storyColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,NULL,NULL,'')`
	_, err = tx.ExecContext(ctx, q, req.ID, req.ParticipationID, req.GiveawayID, req.UserID, req.Status.String(), req.SubmittedAt)
	if err != nil {
		if isUniqueViolation(err) {
			err = ds.ErrAlreadyPending
		}
		return err
	}
	return tx.Commit()
}

func (r *StoryRepository) GetByID(ctx context.Context, id string) (*ds.Request, error) {
	return r.getOne(ctx, `SELECT `+storyColumns+` FROM story_requests WHERE id=$1`, id)
}

func (r *StoryRepository) GetByParticipation(ctx context.Context, participationID string) (*ds.Request, error) {
	return r.getOne(ctx, `SELECT `+storyColumns+` FROM story_requests WHERE participation_id=$1`, participationID)
}

func (r *StoryRepository) getOne(ctx context.Context, q string, arg any) (*ds.Request, error) {
	req, err := scanStory(r.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ds.ErrNotFound
	}
	return req, err
}

// Approve flips the request and credits the participation together.
func (r *StoryRepository) Approve(ctx context.Context, id string, reviewerID int64, at time.Time) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const q = `
	UPDATE story_requests SET status=$2, reviewed_at=$3, reviewed_by=$4
	WHERE id=$1 AND status=$5
	RETURNING participation_id`
	var participationID string
	err = tx.QueryRowContext(ctx, q, id, ds.StatusApproved.String(), at, reviewerID, ds.StatusPending.String()).Scan(&participationID)
	if errors.Is(err, sql.ErrNoRows) {
		err = notPendingReason(ctx, tx, id)
		return err
	}
	if err != nil {
		return err
	}

	const qCredit = `UPDATE participations SET stories_shared=TRUE, tickets_extra = tickets_extra + 1 WHERE id=$1`
	res, err := tx.ExecContext(ctx, qCredit, participationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = errors.New("story approval: participation row missing")
		return err
	}
	return tx.Commit()
}

func (r *StoryRepository) Reject(ctx context.Context, id string, reviewerID int64, reason string, at time.Time) error {
	const q = `
	UPDATE story_requests SET status=$2, reviewed_at=$3, reviewed_by=$4, reject_reason=$5
	WHERE id=$1 AND status=$6`
	res, err := r.db.ExecContext(ctx, q, id, ds.StatusRejected.String(), at, reviewerID, reason, ds.StatusPending.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notPendingReason(ctx, r.db, id)
	}
	return nil
}

// notPendingReason explains why a PENDING-only update matched no rows.
func notPendingReason(ctx context.Context, q queryer, id string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM story_requests WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ds.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == ds.StatusApproved.String() {
		return ds.ErrAlreadyApproved
	}
	return ds.ErrNotPending
}

func scanStory(row rowScanner) (*ds.Request, error) {
	var (
		req        ds.Request
		status     string
		reviewedAt sql.NullTime
		reviewedBy sql.NullInt64
	)
	err := row.Scan(&req.ID, &req.ParticipationID, &req.GiveawayID, &req.UserID, &status, &req.SubmittedAt,
		&reviewedAt, &reviewedBy, &req.RejectReason)
	if err != nil {
		return nil, err
	}
	if req.Status, err = ds.ParseStatus(status); err != nil {
		return nil, err
	}
	req.ReviewedAt = timeFromNull(reviewedAt)
	req.ReviewedBy = int64FromNull(reviewedBy)
	return &req, nil
}
