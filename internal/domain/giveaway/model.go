package giveaway

import (
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
)

// CaptchaMode controls when joining requires a solved captcha.
type CaptchaMode uint8

const (
	CaptchaOff CaptchaMode = iota + 1
	CaptchaSuspiciousOnly
	CaptchaAll
)

func (m CaptchaMode) String() string {
	switch m {
	case CaptchaOff:
		return "OFF"
	case CaptchaSuspiciousOnly:
		return "SUSPICIOUS_ONLY"
	case CaptchaAll:
		return "ALL"
	}
	return fmt.Sprintf("CaptchaMode(%d)", uint8(m))
}

// ParseCaptchaMode accepts the String form of a mode.
func ParseCaptchaMode(v string) (CaptchaMode, error) {
	switch v {
	case "OFF":
		return CaptchaOff, nil
	case "SUSPICIOUS_ONLY":
		return CaptchaSuspiciousOnly, nil
	case "ALL":
		return CaptchaAll, nil
	}
	return 0, fmt.Errorf("unknown captcha mode %q", v)
}

func (m CaptchaMode) MarshalText() ([]byte, error) {
	if m < CaptchaOff || m > CaptchaAll {
		return nil, fmt.Errorf("invalid captcha mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

func (m *CaptchaMode) UnmarshalText(b []byte) error {
	v, err := ParseCaptchaMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Condition is the per-giveaway rule set for joining and earning tickets.
type Condition struct {
	CaptchaMode        CaptchaMode `json:"captcha_mode"`
	InviteEnabled      bool        `json:"invite_enabled"`
	InviteMax          int         `json:"invite_max"`
	BoostEnabled       bool        `json:"boost_enabled"`
	BoostChannelIDs    []int64     `json:"boost_channel_ids"`
	StoriesEnabled     bool        `json:"stories_enabled"`
	RequiredChannelIDs []int64     `json:"required_channel_ids"`
}

// Normalize drops duplicate channel ids and fills defaults.
func (c Condition) Normalize() Condition {
	if c.CaptchaMode == 0 {
		c.CaptchaMode = CaptchaOff
	}
	c.BoostChannelIDs = lo.Uniq(c.BoostChannelIDs)
	c.RequiredChannelIDs = lo.Uniq(c.RequiredChannelIDs)
	return c
}

func (c Condition) Validate() error {
	if c.CaptchaMode < CaptchaOff || c.CaptchaMode > CaptchaAll {
		return errors.New("captcha_mode is invalid")
	}
	if c.InviteEnabled && c.InviteMax < 1 {
		return errors.New("invite_max must be at least 1 when invites are enabled")
	}
	if c.BoostEnabled && len(c.BoostChannelIDs) == 0 {
		return errors.New("boost_channel_ids must not be empty when boosts are enabled")
	}
	if lo.Contains(c.BoostChannelIDs, 0) || lo.Contains(c.RequiredChannelIDs, 0) {
		return errors.New("channel ids must be non-zero")
	}
	return nil
}

// HasBoostChannel reports whether channelID is eligible for boost tickets.
func (c Condition) HasBoostChannel(channelID int64) bool {
	return c.BoostEnabled && lo.Contains(c.BoostChannelIDs, channelID)
}

// Giveaway is the aggregate owned by the lifecycle manager.
type Giveaway struct {
	ID                string     `json:"id"`
	OwnerID           int64      `json:"owner_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Status            Status     `json:"status"`
	StartAt           *time.Time `json:"start_at,omitempty"`
	EndAt             *time.Time `json:"end_at,omitempty"`
	WinnersCount      int        `json:"winners_count"`
	ParticipantsCount int        `json:"participants_count"`
	Condition         Condition  `json:"condition"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Expired reports whether the end time has passed at now.
func (g *Giveaway) Expired(now time.Time) bool {
	return g.EndAt != nil && !now.Before(*g.EndAt)
}

// Task is an owner-defined action that earns extra tickets once per participant.
type Task struct {
	ID          string    `json:"id"`
	GiveawayID  string    `json:"giveaway_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Tickets     int       `json:"tickets"`
	CreatedAt   time.Time `json:"created_at"`
}
