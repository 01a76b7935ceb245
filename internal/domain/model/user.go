package model

import (
	"time"

	"github.com/astraweb/lunaria/backend/internal/domain/enums"
)

type User struct {
	ID                    int64      `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Role                  enums.Role `json:"role"`
	BillingCustomerID     string     `json:"billing_customer_id,omitempty"`
	BillingSubscriptionID string     `json:"billing_subscription_id,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// Subscribed reports paid-tier membership. A non-empty subscription
// reference is the only signal; credit balances are tracked separately.
func (u User) Subscribed() bool {
	return u.BillingSubscriptionID != ""
}
