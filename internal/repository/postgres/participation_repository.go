package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
)

const participationColumns = `id, giveaway_id, user_id, status, tickets_base, tickets_extra, referrer_user_id,
	referrals_credited, stories_shared, fraud_score, conditions_snapshot, source_tag, joined_at`

// ParticipationRepository persists participations and their ticket credits.
type ParticipationRepository struct {
	db *sql.DB
}

var _ dp.Repository = (*ParticipationRepository)(nil)

func NewParticipationRepository(db *sql.DB) *ParticipationRepository {
	return &ParticipationRepository{db: db}
}

// Join creates the participation, credits the referrer when the claim is still
// under its cap and bumps the giveaway counter, all in one transaction.
// A duplicate (giveaway_id, user_id) rolls everything back with dp.ErrAlreadyJoined.
func (r *ParticipationRepository) Join(ctx context.Context, p *dp.Participation, claim *dp.ReferralClaim) (res dp.JoinResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return res, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const qInsert = `
	INSERT INTO participations (id, giveaway_id, user_id, status, tickets_base, tickets_extra, referrals_credited,
		stories_shared, fraud_score, conditions_snapshot, source_tag, joined_at)
	VALUES ($1,$2,$3,$4,$5,0,0,FALSE,$6,$7,$8,$9)
	ON CONFLICT (giveaway_id, user_id) DO NOTHING`
	inserted, err := tx.ExecContext(ctx, qInsert,
		p.ID, p.GiveawayID, p.UserID, p.Status.String(), p.TicketsBase, p.FraudScore, p.Conditions, p.SourceTag, p.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = dp.ErrAlreadyJoined
		}
		return res, err
	}
	n, err := inserted.RowsAffected()
	if err != nil {
		return res, err
	}
	if n == 0 {
		err = dp.ErrAlreadyJoined
		return res, err
	}

	if claim != nil {
		// The row lock on the referrer plus the re-checked predicate make the
		// cap hold under concurrent referees.
		const qCredit = `
		UPDATE participations
		SET tickets_extra = tickets_extra + 1, referrals_credited = referrals_credited + 1
		WHERE giveaway_id=$1 AND user_id=$2 AND status=$3 AND referrals_credited < $4`
		credited, err2 := tx.ExecContext(ctx, qCredit, p.GiveawayID, claim.ReferrerUserID, dp.StatusJoined.String(), claim.InviteMax)
		if err2 != nil {
			err = err2
			return res, err
		}
		if n, err = credited.RowsAffected(); err != nil {
			return res, err
		}
		if n == 1 {
			if _, err = tx.ExecContext(ctx, `UPDATE participations SET referrer_user_id=$2 WHERE id=$1`, p.ID, claim.ReferrerUserID); err != nil {
				return res, err
			}
			referrer := claim.ReferrerUserID
			p.ReferrerUserID = &referrer
			res.ReferralCredited = true
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE giveaways SET participants_count = participants_count + 1 WHERE id=$1`, p.GiveawayID); err != nil {
		return res, err
	}
	if err = tx.Commit(); err != nil {
		return res, err
	}
	return res, nil
}

func (r *ParticipationRepository) Get(ctx context.Context, giveawayID string, userID int64) (*dp.Participation, error) {
	q := `SELECT ` + participationColumns + ` FROM participations WHERE giveaway_id=$1 AND user_id=$2`
	return r.getOne(ctx, q, giveawayID, userID)
}

func (r *ParticipationRepository) GetByID(ctx context.Context, id string) (*dp.Participation, error) {
	q := `SELECT ` + participationColumns + ` FROM participations WHERE id=$1`
	return r.getOne(ctx, q, id)
}

func (r *ParticipationRepository) getOne(ctx context.Context, q string, args ...any) (*dp.Participation, error) {
	p, err := scanParticipation(r.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dp.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadBoosts(ctx, []*dp.Participation{p}); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ParticipationRepository) CountJoinsSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participations WHERE user_id=$1 AND joined_at >= $2`, userID, since).Scan(&n)
	return n, err
}

func (r *ParticipationRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*dp.Participation, error) {
	const q = `
	SELECT p.id, p.giveaway_id, p.user_id, p.status, p.tickets_base, p.tickets_extra, p.referrer_user_id,
		p.referrals_credited, p.stories_shared, p.fraud_score, p.conditions_snapshot, p.source_tag, p.joined_at
	FROM participations p
	JOIN giveaways g ON g.id = p.giveaway_id
	WHERE p.user_id=$1 AND g.status=$2
	ORDER BY p.joined_at`
	rows, err := r.db.QueryContext(ctx, q, userID, dg.StatusActive.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*dp.Participation
	for rows.Next() {
		p, err := scanParticipation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadBoosts(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyBoost stores the new observed count only if the stored one still equals
// credit.Previous, then credits tickets in the same transaction.
func (r *ParticipationRepository) ApplyBoost(ctx context.Context, credit dp.BoostCredit) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var res sql.Result
	if credit.Previous == 0 {
		const q = `
		INSERT INTO participation_boosts (participation_id, channel_id, observed_count, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (participation_id, channel_id) DO NOTHING`
		res, err = tx.ExecContext(ctx, q, credit.ParticipationID, credit.ChannelID, credit.Observed)
	} else {
		const q = `
		UPDATE participation_boosts SET observed_count=$3, updated_at=now()
		WHERE participation_id=$1 AND channel_id=$2 AND observed_count=$4`
		res, err = tx.ExecContext(ctx, q, credit.ParticipationID, credit.ChannelID, credit.Observed, credit.Previous)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = dp.ErrBoostConflict
		return err
	}

	if credit.TicketsToAdd > 0 {
		if err = creditTickets(ctx, tx, credit.ParticipationID, credit.TicketsToAdd); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *ParticipationRepository) CompleteTask(ctx context.Context, participationID, taskID string, tickets int) (err error) {
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
	INSERT INTO task_completions (participation_id, task_id, tickets, completed_at)
	VALUES ($1,$2,$3,now())
	ON CONFLICT (participation_id, task_id) DO NOTHING`
	res, err := tx.ExecContext(ctx, q, participationID, taskID, tickets)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = dp.ErrTaskAlreadyCompleted
		return err
	}
	if err = creditTickets(ctx, tx, participationID, tickets); err != nil {
		return err
	}
	return tx.Commit()
}

// creditTickets only ever adds to tickets_extra.
func creditTickets(ctx context.Context, tx *sql.Tx, participationID string, n int) error {
	res, err := tx.ExecContext(ctx, `UPDATE participations SET tickets_extra = tickets_extra + $2 WHERE id=$1`, participationID, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return dp.ErrNotFound
	}
	return nil
}

func (r *ParticipationRepository) loadBoosts(ctx context.Context, ps []*dp.Participation) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[string]*dp.Participation, len(ps))
	ids := make([]string, 0, len(ps))
	for _, p := range ps {
		p.Boosts = dp.BoostSnapshot{}
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT participation_id, channel_id, observed_count FROM participation_boosts WHERE participation_id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pid       string
			channelID int64
			observed  int
		)
		if err := rows.Scan(&pid, &channelID, &observed); err != nil {
			return err
		}
		if p, ok := byID[pid]; ok {
			p.Boosts[channelID] = observed
		}
	}
	return rows.Err()
}

func scanParticipation(row rowScanner) (*dp.Participation, error) {
	var (
		p        dp.Participation
		status   string
		referrer sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.GiveawayID, &p.UserID, &status, &p.TicketsBase, &p.TicketsExtra, &referrer,
		&p.ReferralsCredited, &p.StoriesShared, &p.FraudScore, &p.Conditions, &p.SourceTag, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Status, err = dp.ParseStatus(status); err != nil {
		return nil, err
	}
	p.ReferrerUserID = int64FromNull(referrer)
	return &p, nil
}
