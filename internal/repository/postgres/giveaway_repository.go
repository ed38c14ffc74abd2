package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
)

const giveawayColumns = `id, owner_id, title, description, status, start_at, end_at, winners_count, participants_count,
	captcha_mode, invite_enabled, invite_max, boost_enabled, boost_channel_ids, stories_enabled, required_channel_ids,
	created_at, updated_at`

// GiveawayRepository persists giveaways, their rules and tasks.
type GiveawayRepository struct {
	db *sql.DB
}

var _ dg.Repository = (*GiveawayRepository)(nil)

func NewGiveawayRepository(db *sql.DB) *GiveawayRepository { return &GiveawayRepository{db: db} }

func (r *GiveawayRepository) Create(ctx context.Context, g *dg.Giveaway) error {
	const q = `
	INSERT INTO giveaways (` + giveawayColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`
	c := g.Condition
	_, err := r.db.ExecContext(ctx, q,
		g.ID, g.OwnerID, g.Title, g.Description, g.Status.String(), nullTime(g.StartAt), nullTime(g.EndAt),
		g.WinnersCount, g.ParticipantsCount,
		c.CaptchaMode.String(), c.InviteEnabled, c.InviteMax, c.BoostEnabled, int64Array(c.BoostChannelIDs),
		c.StoriesEnabled, int64Array(c.RequiredChannelIDs),
		g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (r *GiveawayRepository) GetByID(ctx context.Context, id string) (*dg.Giveaway, error) {
	q := `SELECT ` + giveawayColumns + ` FROM giveaways WHERE id=$1`
	g, err := scanGiveaway(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dg.ErrNotFound
	}
	return g, err
}

func (r *GiveawayRepository) UpdateStatus(ctx context.Context, id string, from, to dg.Status) error {
	const q = `UPDATE giveaways SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`
	res, err := r.db.ExecContext(ctx, q, id, from.String(), to.String())
	if err != nil {
		return err
	}
	return r.checkCAS(ctx, id, res)
}

func (r *GiveawayRepository) UpdateCondition(ctx context.Context, id string, c dg.Condition) error {
	var preLaunch []string
	for _, s := range dg.AllStatuses {
		if s.PreLaunch() {
			preLaunch = append(preLaunch, s.String())
		}
	}
	const q = `
	UPDATE giveaways SET
		captcha_mode=$2, invite_enabled=$3, invite_max=$4, boost_enabled=$5, boost_channel_ids=$6,
		stories_enabled=$7, required_channel_ids=$8, updated_at=now()
	WHERE id=$1 AND status = ANY($9)`
	res, err := r.db.ExecContext(ctx, q, id,
		c.CaptchaMode.String(), c.InviteEnabled, c.InviteMax, c.BoostEnabled, int64Array(c.BoostChannelIDs),
		c.StoriesEnabled, int64Array(c.RequiredChannelIDs), pq.Array(preLaunch),
	)
	if err != nil {
		return err
	}
	return r.checkCAS(ctx, id, res)
}

// checkCAS tells a missing row apart from a lost compare-and-set.
func (r *GiveawayRepository) checkCAS(ctx context.Context, id string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM giveaways WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return dg.ErrNotFound
	}
	return dg.ErrStatusConflict
}

func (r *GiveawayRepository) ListScheduledDue(ctx context.Context, now time.Time) ([]string, error) {
	const q = `SELECT id FROM giveaways WHERE status=$1 AND start_at IS NOT NULL AND start_at <= $2 ORDER BY start_at`
	return r.listIDs(ctx, q, dg.StatusScheduled.String(), now)
}

func (r *GiveawayRepository) ListActiveExpired(ctx context.Context, now time.Time) ([]string, error) {
	const q = `SELECT id FROM giveaways WHERE status=$1 AND end_at IS NOT NULL AND end_at <= $2 ORDER BY end_at`
	return r.listIDs(ctx, q, dg.StatusActive.String(), now)
}

func (r *GiveawayRepository) listIDs(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *GiveawayRepository) AddTask(ctx context.Context, t *dg.Task) error {
	const q = `
	INSERT INTO giveaway_tasks (id, giveaway_id, title, description, url, tickets, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.ExecContext(ctx, q, t.ID, t.GiveawayID, t.Title, t.Description, t.URL, t.Tickets, t.CreatedAt)
	return err
}

func (r *GiveawayRepository) GetTask(ctx context.Context, giveawayID, taskID string) (*dg.Task, error) {
	const q = `
	SELECT id, giveaway_id, title, description, url, tickets, created_at
	FROM giveaway_tasks WHERE id=$1 AND giveaway_id=$2`
	var t dg.Task
	err := r.db.QueryRowContext(ctx, q, taskID, giveawayID).
		Scan(&t.ID, &t.GiveawayID, &t.Title, &t.Description, &t.URL, &t.Tickets, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dg.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *GiveawayRepository) ListTasks(ctx context.Context, giveawayID string) ([]dg.Task, error) {
	const q = `
	SELECT id, giveaway_id, title, description, url, tickets, created_at
	FROM giveaway_tasks WHERE giveaway_id=$1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, giveawayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []dg.Task
	for rows.Next() {
		var t dg.Task
		if err := rows.Scan(&t.ID, &t.GiveawayID, &t.Title, &t.Description, &t.URL, &t.Tickets, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanGiveaway(row rowScanner) (*dg.Giveaway, error) {
	var (
		g                     dg.Giveaway
		status, mode          string
		startAt, endAt        sql.NullTime
		boostIDs, requiredIDs pq.Int64Array
	)
	err := row.Scan(
		&g.ID, &g.OwnerID, &g.Title, &g.Description, &status, &startAt, &endAt, &g.WinnersCount, &g.ParticipantsCount,
		&mode, &g.Condition.InviteEnabled, &g.Condition.InviteMax, &g.Condition.BoostEnabled, &boostIDs,
		&g.Condition.StoriesEnabled, &requiredIDs, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if g.Status, err = dg.ParseStatus(status); err != nil {
		return nil, err
	}
	if g.Condition.CaptchaMode, err = dg.ParseCaptchaMode(mode); err != nil {
		return nil, err
	}
	g.StartAt = timeFromNull(startAt)
	g.EndAt = timeFromNull(endAt)
	g.Condition.BoostChannelIDs = []int64(boostIDs)
	g.Condition.RequiredChannelIDs = []int64(requiredIDs)
	return &g, nil
}
