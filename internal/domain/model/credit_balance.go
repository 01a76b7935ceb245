package model

import (
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

// CreditBalance is the per-user, per-feature consumption balance for
// the current monthly period. Exactly one row exists per
// (user, feature type); a period rollover rewrites it in place.
type CreditBalance struct {
	UserID      int64             `json:"user_id"`
	FeatureType enums.FeatureType `json:"feature_type"`
	Remaining   int               `json:"remaining"`
	Used        int               `json:"used"`
	ResetAt     time.Time         `json:"reset_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
