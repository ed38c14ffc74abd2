// Package memory implements the domain repositories in process memory. It
// keeps the same atomicity guarantees as the Postgres repositories by running
// every multi-step write under a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	dg "github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
	dp "github.com/open-builders/giveaway-tickets/internal/domain/participation"
	ds "github.com/open-builders/giveaway-tickets/internal/domain/story"
)

type participationKey struct {
	giveawayID string
	userID     int64
}

type taskKey struct {
	participationID string
	taskID          string
}

type state struct {
	mu             sync.Mutex
	giveaways      map[string]*dg.Giveaway
	tasks          map[string][]dg.Task
	participations map[string]*dp.Participation
	byUser         map[participationKey]string
	completions    map[taskKey]struct{}
	stories        map[string]*ds.Request
	storyByPart    map[string]string
}

// Store groups the repositories sharing one in-memory database.
type Store struct {
	Giveaways      *GiveawayRepository
	Participations *ParticipationRepository
	Stories        *StoryRepository
}

func NewStore() *Store {
	s := &state{
		giveaways:      make(map[string]*dg.Giveaway),
		tasks:          make(map[string][]dg.Task),
		participations: make(map[string]*dp.Participation),
		byUser:         make(map[participationKey]string),
		completions:    make(map[taskKey]struct{}),
		stories:        make(map[string]*ds.Request),
		storyByPart:    make(map[string]string),
	}
	return &Store{
		Giveaways:      &GiveawayRepository{s: s},
		Participations: &ParticipationRepository{s: s},
		Stories:        &StoryRepository{s: s},
	}
}

// GiveawayRepository is the in-memory dg.Repository.
type GiveawayRepository struct{ s *state }

var _ dg.Repository = (*GiveawayRepository)(nil)

func copyGiveaway(g *dg.Giveaway) *dg.Giveaway {
	c := *g
	c.Condition.BoostChannelIDs = append([]int64(nil), g.Condition.BoostChannelIDs...)
	c.Condition.RequiredChannelIDs = append([]int64(nil), g.Condition.RequiredChannelIDs...)
	return &c
}

func (r *GiveawayRepository) Create(_ context.Context, g *dg.Giveaway) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.giveaways[g.ID] = copyGiveaway(g)
	return nil
}

func (r *GiveawayRepository) GetByID(_ context.Context, id string) (*dg.Giveaway, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.giveaways[id]
	if !ok {
		return nil, dg.ErrNotFound
	}
	return copyGiveaway(g), nil
}

func (r *GiveawayRepository) UpdateStatus(_ context.Context, id string, from, to dg.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.giveaways[id]
	if !ok {
		return dg.ErrNotFound
	}
	if g.Status != from {
		return dg.ErrStatusConflict
	}
	g.Status = to
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *GiveawayRepository) UpdateCondition(_ context.Context, id string, c dg.Condition) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.giveaways[id]
	if !ok {
		return dg.ErrNotFound
	}
	if !g.Status.PreLaunch() {
		return dg.ErrStatusConflict
	}
	g.Condition = c
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *GiveawayRepository) ListScheduledDue(_ context.Context, now time.Time) ([]string, error) {
	return r.list(func(g *dg.Giveaway) bool {
		return g.Status == dg.StatusScheduled && g.StartAt != nil && !g.StartAt.After(now)
	}), nil
}

func (r *GiveawayRepository) ListActiveExpired(_ context.Context, now time.Time) ([]string, error) {
	return r.list(func(g *dg.Giveaway) bool {
		return g.Status == dg.StatusActive && g.Expired(now)
	}), nil
}

func (r *GiveawayRepository) list(match func(*dg.Giveaway) bool) []string {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, g := range r.s.giveaways {
		if match(g) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *GiveawayRepository) AddTask(_ context.Context, t *dg.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.giveaways[t.GiveawayID]; !ok {
		return dg.ErrNotFound
	}
	r.s.tasks[t.GiveawayID] = append(r.s.tasks[t.GiveawayID], *t)
	return nil
}

func (r *GiveawayRepository) GetTask(_ context.Context, giveawayID, taskID string) (*dg.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tasks[giveawayID] {
		if t.ID == taskID {
			t := t
			return &t, nil
		}
	}
	return nil, dg.ErrTaskNotFound
}

func (r *GiveawayRepository) ListTasks(_ context.Context, giveawayID string) ([]dg.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]dg.Task(nil), r.s.tasks[giveawayID]...), nil
}

// ParticipationRepository is the in-memory dp.Repository.
type ParticipationRepository struct{ s *state }

var _ dp.Repository = (*ParticipationRepository)(nil)

func copyParticipation(p *dp.Participation) *dp.Participation {
	c := *p
	c.Boosts = make(dp.BoostSnapshot, len(p.Boosts))
	for k, v := range p.Boosts {
		c.Boosts[k] = v
	}
	if p.ReferrerUserID != nil {
		v := *p.ReferrerUserID
		c.ReferrerUserID = &v
	}
	return &c
}

func (r *ParticipationRepository) Join(_ context.Context, p *dp.Participation, claim *dp.ReferralClaim) (dp.JoinResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var res dp.JoinResult
	key := participationKey{p.GiveawayID, p.UserID}
	if _, exists := r.s.byUser[key]; exists {
		return res, dp.ErrAlreadyJoined
	}
	g, ok := r.s.giveaways[p.GiveawayID]
	if !ok {
		return res, dg.ErrNotFound
	}

	stored := copyParticipation(p)
	stored.TicketsExtra = 0
	stored.ReferralsCredited = 0
	stored.ReferrerUserID = nil

	if claim != nil {
		refID, ok := r.s.byUser[participationKey{p.GiveawayID, claim.ReferrerUserID}]
		if ok {
			ref := r.s.participations[refID]
			if ref.Status == dp.StatusJoined && ref.ReferralsCredited < claim.InviteMax {
				ref.ReferralsCredited++
				ref.TicketsExtra++
				v := claim.ReferrerUserID
				stored.ReferrerUserID = &v
				res.ReferralCredited = true
			}
		}
	}

	r.s.participations[stored.ID] = stored
	r.s.byUser[key] = stored.ID
	g.ParticipantsCount++

	if stored.ReferrerUserID != nil {
		v := *stored.ReferrerUserID
		p.ReferrerUserID = &v
	}
	return res, nil
}

func (r *ParticipationRepository) Get(_ context.Context, giveawayID string, userID int64) (*dp.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.byUser[participationKey{giveawayID, userID}]
	if !ok {
		return nil, dp.ErrNotFound
	}
	return copyParticipation(r.s.participations[id]), nil
}

func (r *ParticipationRepository) GetByID(_ context.Context, id string) (*dp.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participations[id]
	if !ok {
		return nil, dp.ErrNotFound
	}
	return copyParticipation(p), nil
}

func (r *ParticipationRepository) CountJoinsSince(_ context.Context, userID int64, since time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, p := range r.s.participations {
		if p.UserID == userID && !p.JoinedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *ParticipationRepository) ListActiveByUser(_ context.Context, userID int64) ([]*dp.Participation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*dp.Participation
	for _, p := range r.s.participations {
		if p.UserID != userID {
			continue
		}
		if g, ok := r.s.giveaways[p.GiveawayID]; ok && g.Status == dg.StatusActive {
			out = append(out, copyParticipation(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *ParticipationRepository) ApplyBoost(_ context.Context, credit dp.BoostCredit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participations[credit.ParticipationID]
	if !ok {
		return dp.ErrNotFound
	}
	if p.Boosts.Observed(credit.ChannelID) != credit.Previous {
		return dp.ErrBoostConflict
	}
	if p.Boosts == nil {
		p.Boosts = dp.BoostSnapshot{}
	}
	p.Boosts[credit.ChannelID] = credit.Observed
	if credit.TicketsToAdd > 0 {
		p.TicketsExtra += credit.TicketsToAdd
	}
	return nil
}

func (r *ParticipationRepository) CompleteTask(_ context.Context, participationID, taskID string, tickets int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.participations[participationID]
	if !ok {
		return dp.ErrNotFound
	}
	key := taskKey{participationID, taskID}
	if _, done := r.s.completions[key]; done {
		return dp.ErrTaskAlreadyCompleted
	}
	r.s.completions[key] = struct{}{}
	p.TicketsExtra += tickets
	return nil
}

// StoryRepository is the in-memory ds.Repository.
type StoryRepository struct{ s *state }

var _ ds.Repository = (*StoryRepository)(nil)

func copyStory(req *ds.Request) *ds.Request {
	c := *req
	return &c
}

func (r *StoryRepository) Submit(_ context.Context, req *ds.Request, supersedes string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if supersedes != "" {
		old, ok := r.s.stories[supersedes]
		if !ok || old.Status != ds.StatusRejected {
			return ds.ErrAlreadyPending
		}
		delete(r.s.stories, supersedes)
		delete(r.s.storyByPart, old.ParticipationID)
	}
	if _, exists := r.s.storyByPart[req.ParticipationID]; exists {
		return ds.ErrAlreadyPending
	}
	r.s.stories[req.ID] = copyStory(req)
	r.s.storyByPart[req.ParticipationID] = req.ID
	return nil
}

func (r *StoryRepository) GetByID(_ context.Context, id string) (*ds.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.stories[id]
	if !ok {
		return nil, ds.ErrNotFound
	}
	return copyStory(req), nil
}

func (r *StoryRepository) GetByParticipation(_ context.Context, participationID string) (*ds.Request, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.storyByPart[participationID]
	if !ok {
		return nil, ds.ErrNotFound
	}
	return copyStory(r.s.stories[id]), nil
}

func (r *StoryRepository) Approve(_ context.Context, id string, reviewerID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, err := r.pendingLocked(id)
	if err != nil {
		return err
	}
	p, ok := r.s.participations[req.ParticipationID]
	if !ok {
		return dp.ErrNotFound
	}
	req.Status = ds.StatusApproved
	req.ReviewedAt = &at
	req.ReviewedBy = &reviewerID
	p.StoriesShared = true
	p.TicketsExtra++
	return nil
}

func (r *StoryRepository) Reject(_ context.Context, id string, reviewerID int64, reason string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, err := r.pendingLocked(id)
	if err != nil {
		return err
	}
	req.Status = ds.StatusRejected
	req.ReviewedAt = &at
	req.ReviewedBy = &reviewerID
	req.RejectReason = reason
	return nil
}

func (r *StoryRepository) pendingLocked(id string) (*ds.Request, error) {
	req, ok := r.s.stories[id]
	if !ok {
		return nil, ds.ErrNotFound
	}
	switch req.Status {
	case ds.StatusPending:
		return req, nil
	case ds.StatusApproved:
		return nil, ds.ErrAlreadyApproved
	case ds.StatusRejected:
		return nil, ds.ErrNotPending
	}
	return nil, ds.ErrNotPending
}
