package participation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/domain/giveaway"
)

// ConditionsSnapshotVersion is the current layout of ConditionsSnapshot.
const ConditionsSnapshotVersion = 1

// ConditionsSnapshot is the audit copy of the rules in force when the user joined.
type ConditionsSnapshot struct {
	Version            int                  `json:"version"`
	CaptchaMode        giveaway.CaptchaMode `json:"captcha_mode"`
	CaptchaRequired    bool                 `json:"captcha_required"`
	InviteEnabled      bool                 `json:"invite_enabled"`
	InviteMax          int                  `json:"invite_max"`
	BoostEnabled       bool                 `json:"boost_enabled"`
	BoostChannelIDs    []int64              `json:"boost_channel_ids"`
	StoriesEnabled     bool                 `json:"stories_enabled"`
	RequiredChannelIDs []int64              `json:"required_channel_ids"`
	TakenAt            time.Time            `json:"taken_at"`
}

// NewConditionsSnapshot copies c so later edits to the giveaway never leak into it.
func NewConditionsSnapshot(c giveaway.Condition, captchaRequired bool, at time.Time) ConditionsSnapshot {
	return ConditionsSnapshot{
		Version:            ConditionsSnapshotVersion,
		CaptchaMode:        c.CaptchaMode,
		CaptchaRequired:    captchaRequired,
		InviteEnabled:      c.InviteEnabled,
		InviteMax:          c.InviteMax,
		BoostEnabled:       c.BoostEnabled,
		BoostChannelIDs:    append([]int64(nil), c.BoostChannelIDs...),
		StoriesEnabled:     c.StoriesEnabled,
		RequiredChannelIDs: append([]int64(nil), c.RequiredChannelIDs...),
		TakenAt:            at.UTC(),
	}
}

func (s ConditionsSnapshot) Validate() error {
	if s.Version != ConditionsSnapshotVersion {
		return fmt.Errorf("unsupported conditions snapshot version %d", s.Version)
	}
	if s.CaptchaMode < giveaway.CaptchaOff || s.CaptchaMode > giveaway.CaptchaAll {
		return fmt.Errorf("conditions snapshot has invalid captcha mode %d", s.CaptchaMode)
	}
	if s.InviteEnabled && s.InviteMax < 1 {
		return fmt.Errorf("conditions snapshot has invite_max %d", s.InviteMax)
	}
	return nil
}

// Value stores the snapshot as JSON.
func (s ConditionsSnapshot) Value() (driver.Value, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(s)
}

// Scan decodes and validates a stored snapshot.
func (s *ConditionsSnapshot) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("conditions snapshot: unsupported source %T", src)
	}
	var out ConditionsSnapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("conditions snapshot: %w", err)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*s = out
	return nil
}
