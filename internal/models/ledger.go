package models

import "time"

// AwardPayload is the ledger write computed by the approval engine.
// Ref is the pending action id and identifies the award on the ledger.
type AwardPayload struct {
	Ref             string     `json:"ref"`
	UserWallet      string     `json:"user_wallet"`
	CommunityID     string     `json:"community_id"`
	SchemaID        string     `json:"schema_id"`
	ActionID        string     `json:"action_id"`
	BasePoints      int64      `json:"base_points"`
	BonusPoints     int64      `json:"bonus_points"`
	TotalPoints     int64      `json:"total_points"`
	OrganizerWallet string     `json:"organizer_wallet"`
	ReservedUntil   *time.Time `json:"reserved_until,omitempty"`
}

// LedgerRecord is an award as read back from the ledger. Immutable once confirmed.
type LedgerRecord struct {
	Ref             string    `json:"ref"`
	UserWallet      string    `json:"user_wallet"`
	CommunityID     string    `json:"community_id"`
	SchemaID        string    `json:"schema_id"`
	ActionID        string    `json:"action_id"`
	BasePoints      int64     `json:"base_points"`
	BonusPoints     int64     `json:"bonus_points"`
	TotalPoints     int64     `json:"total_points"`
	OrganizerWallet string    `json:"organizer_wallet"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionRef  string    `json:"transaction_ref"`
}

// Receipt is returned once a ledger write has been confirmed.
type Receipt struct {
	Ref            string    `json:"ref"`
	TransactionRef string    `json:"transaction_ref"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
}

// ConfirmedAward is what a caller hands back to finalize a request.
type ConfirmedAward struct {
	Payload        AwardPayload `json:"payload"`
	TransactionRef string       `json:"transaction_ref"`
}
