package fraud

import (
	"context"
	"time"
)

const year = 365 * 24 * time.Hour

// DefaultPolicy scores young accounts, bursts of joins and non-premium users.
//
//	account age < 1y  +40   < 2y  +25   < 4y  +10
//	joins last hour >= 10  +40   >= 5  +25   >= 3  +10
//	not premium  +10
type DefaultPolicy struct{}

func (DefaultPolicy) Score(_ context.Context, s Signals) (int, error) {
	score := 0

	age := s.Now.Sub(EstimateRegistration(s.UserID))
	switch {
	case age < year:
		score += 40
	case age < 2*year:
		score += 25
	case age < 4*year:
		score += 10
	}

	switch {
	case s.RecentJoins >= 10:
		score += 40
	case s.RecentJoins >= 5:
		score += 25
	case s.RecentJoins >= 3:
		score += 10
	}

	if !s.IsPremium {
		score += 10
	}
	return clamp(score), nil
}
