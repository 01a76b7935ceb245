package model

import (
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

// Reading is one generated report (compatibility, birth chart or moon
// reading). Subject holds the request parameters as submitted.
type Reading struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	Kind      enums.FeatureType `json:"kind"`
	Subject   map[string]any    `json:"subject"`
	Body      string            `json:"body"`
	CreatedAt time.Time         `json:"created_at"`
}
