package participation

import (
	"fmt"
	"sort"
	"time"
)

// Status of a participation. JOINED is the only active state.
type Status uint8

const (
	StatusJoined Status = iota + 1
)

func (s Status) String() string {
	switch s {
	case StatusJoined:
		return "JOINED"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func ParseStatus(v string) (Status, error) {
	switch v {
	case "JOINED":
		return StatusJoined, nil
	}
	return 0, fmt.Errorf("unknown participation status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if s != StatusJoined {
		return nil, fmt.Errorf("invalid participation status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// BoostSnapshot maps channel id to the last observed (uncapped) boost count.
type BoostSnapshot map[int64]int

// Observed returns the stored count for channelID, zero when never seen.
func (b BoostSnapshot) Observed(channelID int64) int {
	return b[channelID]
}

// Channels returns boosted channel ids in ascending order.
func (b BoostSnapshot) Channels() []int64 {
	out := make([]int64, 0, len(b))
	for id, n := range b {
		if n > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Participation is one user's entry in one giveaway.
type Participation struct {
	ID                string             `json:"id"`
	GiveawayID        string             `json:"giveaway_id"`
	UserID            int64              `json:"user_id"`
	Status            Status             `json:"status"`
	TicketsBase       int                `json:"tickets_base"`
	TicketsExtra      int                `json:"tickets_extra"`
	ReferrerUserID    *int64             `json:"referrer_user_id,omitempty"`
	ReferralsCredited int                `json:"referrals_credited"`
	Boosts            BoostSnapshot      `json:"boosts"`
	StoriesShared     bool               `json:"stories_shared"`
	FraudScore        int                `json:"fraud_score"`
	Conditions        ConditionsSnapshot `json:"conditions"`
	SourceTag         string             `json:"source_tag,omitempty"`
	JoinedAt          time.Time          `json:"joined_at"`
}

// TotalTickets is the weight of this entry in the draw.
func (p *Participation) TotalTickets() int {
	return p.TicketsBase + p.TicketsExtra
}
