package credits

import (
	"errors"
	"fmt"
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

var ErrNotSubscribed = errors.New("active subscription required")

// NoCreditsError means the feature balance for the current period is
// exhausted. ResetAt tells the caller when a fresh allotment arrives.
type NoCreditsError struct {
	FeatureType enums.FeatureType
	ResetAt     time.Time
}

func (e *NoCreditsError) Error() string {
	return fmt.Sprintf("no %s credits remaining until %s", e.FeatureType, e.ResetAt.Format(time.RFC3339))
}

type DenyReason string

const (
	DenyNotSubscribed DenyReason = "not_subscribed"
	DenyNoCredits     DenyReason = "no_credits"
)

// Access is the read-only gate verdict for one user and feature. It
// never mutates a balance; denial here does not preclude a later
// successful consume after a period rollover.
type Access struct {
	Allowed   bool
	Unmetered bool
	Reason    DenyReason
	Remaining int
	ResetAt   time.Time
}

// ConsumeResult reports a successful consumption. Remaining is zero
// and meaningless when Unmetered is set.
type ConsumeResult struct {
	Remaining int
	Unmetered bool
}

type FeatureBalance struct {
	FeatureType    enums.FeatureType `json:"feature_type"`
	Remaining      int               `json:"remaining"`
	Used           int               `json:"used"`
	Allotment      int               `json:"allotment"`
	ResetAt        time.Time         `json:"reset_at"`
	DaysUntilReset int               `json:"days_until_reset"`
}

type Overview struct {
	Subscribed bool             `json:"subscribed"`
	Unmetered  bool             `json:"unmetered"`
	Balances   []FeatureBalance `json:"balances"`
}
