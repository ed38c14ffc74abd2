package giveaway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusDraft, StatusPendingConfirm, true},
		{StatusDraft, StatusActive, false},
		{StatusPendingConfirm, StatusActive, true},
		{StatusPendingConfirm, StatusScheduled, true},
		{StatusPendingConfirm, StatusDraft, true},
		{StatusScheduled, StatusActive, true},
		{StatusScheduled, StatusError, true},
		{StatusActive, StatusFinished, true},
		{StatusActive, StatusError, true},
		{StatusActive, StatusCancelled, true},
		{StatusDraft, StatusCancelled, true},
		{StatusFinished, StatusCancelled, false},
		{StatusCancelled, StatusActive, false},
		{StatusError, StatusActive, false},
		{StatusActive, StatusScheduled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusTextRoundTripForEveryValue(t *testing.T) {
	for _, s := range AllStatuses {
		b, err := s.MarshalText()
		require.NoError(t, err)
		var back Status
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, s, back)
	}

	_, err := Status(0).MarshalText()
	assert.Error(t, err)
	_, err = ParseStatus("PAUSED")
	assert.Error(t, err)
}

func TestConditionValidateAndNormalize(t *testing.T) {
	c := Condition{
		BoostEnabled:    true,
		BoostChannelIDs: []int64{-100, -100, -200},
	}.Normalize()

	assert.Equal(t, CaptchaOff, c.CaptchaMode)
	assert.Equal(t, []int64{-100, -200}, c.BoostChannelIDs)
	require.NoError(t, c.Validate())
	assert.True(t, c.HasBoostChannel(-200))
	assert.False(t, c.HasBoostChannel(-300))

	assert.Error(t, Condition{CaptchaMode: CaptchaOff, InviteEnabled: true}.Validate())
	assert.Error(t, Condition{CaptchaMode: CaptchaOff, BoostEnabled: true}.Validate())
	assert.Error(t, Condition{}.Validate())
}

func TestConditionJSONUsesModeNames(t *testing.T) {
	b, err := json.Marshal(Condition{CaptchaMode: CaptchaSuspiciousOnly})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"captcha_mode":"SUSPICIOUS_ONLY"`)

	var c Condition
	require.NoError(t, json.Unmarshal([]byte(`{"captcha_mode":"ALL"}`), &c))
	assert.Equal(t, CaptchaAll, c.CaptchaMode)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	end := now.Add(-time.Second)
	g := &Giveaway{EndAt: &end}
	assert.True(t, g.Expired(now))

	g.EndAt = nil
	assert.False(t, g.Expired(now))
}
