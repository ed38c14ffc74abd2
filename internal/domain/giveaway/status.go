package giveaway

import "fmt"

// Status represents the lifecycle state of a giveaway.
type Status uint8

const (
	StatusDraft Status = iota + 1
	StatusPendingConfirm
	StatusScheduled
	StatusActive
	StatusFinished
	StatusCancelled
	StatusError
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingConfirm,
	StatusScheduled,
	StatusActive,
	StatusFinished,
	StatusCancelled,
	StatusError,
}

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "DRAFT"
	case StatusPendingConfirm:
		return "PENDING_CONFIRM"
	case StatusScheduled:
		return "SCHEDULED"
	case StatusActive:
		return "ACTIVE"
	case StatusFinished:
		return "FINISHED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusError:
		return "ERROR"
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ParseStatus is the inverse of String.
func ParseStatus(v string) (Status, error) {
	for _, s := range AllStatuses {
		if s.String() == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown giveaway status %q", v)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid giveaway status %d", uint8(s))
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

func (s Status) Valid() bool {
	return s >= StatusDraft && s <= StatusError
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusError:
		return true
	case StatusDraft, StatusPendingConfirm, StatusScheduled, StatusActive:
		return false
	}
	return true
}

// PreLaunch reports whether the owner may still edit the rules.
func (s Status) PreLaunch() bool {
	switch s {
	case StatusDraft, StatusPendingConfirm, StatusScheduled:
		return true
	case StatusActive, StatusFinished, StatusCancelled, StatusError:
		return false
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	if next == StatusCancelled {
		return !s.Terminal()
	}
	switch s {
	case StatusDraft:
		return next == StatusPendingConfirm
	case StatusPendingConfirm:
		return next == StatusDraft || next == StatusScheduled || next == StatusActive
	case StatusScheduled:
		return next == StatusActive || next == StatusError
	case StatusActive:
		return next == StatusFinished || next == StatusError
	case StatusFinished, StatusCancelled, StatusError:
		return false
	}
	return false
}
