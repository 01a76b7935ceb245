package dto

import "time"

type CreditBalanceResponse struct {
	FeatureType    string    `json:"feature_type"`
	Remaining      int       `json:"remaining"`
	Used           int       `json:"used"`
	Allotment      int       `json:"allotment"`
	ResetAt        time.Time `json:"reset_at"`
	DaysUntilReset int       `json:"days_until_reset"`
}

type CreditsOverviewResponse struct {
	Subscribed bool                    `json:"subscribed"`
	Unmetered  bool                    `json:"unmetered"`
	Balances   []CreditBalanceResponse `json:"balances"`
}

type AccessResponse struct {
	Allowed   bool       `json:"allowed"`
	Unmetered bool       `json:"unmetered,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Remaining int        `json:"remaining"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

type LedgerEntryResponse struct {
	ID          int64     `json:"id"`
	FeatureType string    `json:"feature_type"`
	Action      string    `json:"action"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreditHistoryResponse struct {
	Entries []LedgerEntryResponse `json:"entries"`
}
