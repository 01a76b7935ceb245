package model

import (
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

// LedgerEntry is an append-only audit record of a balance mutation.
type LedgerEntry struct {
	ID          int64              `json:"id"`
	UserID      int64              `json:"user_id"`
	FeatureType enums.FeatureType  `json:"feature_type"`
	Action      enums.LedgerAction `json:"action"`
	Amount      int                `json:"amount"`
	Description string             `json:"description"`
	RelatedID   *int64             `json:"related_id,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}
