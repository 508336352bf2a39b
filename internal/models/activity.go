package models

import "time"

const (
	ActivityKindQueueStatus = "queue_status"
	ActivityKindLedgerProof = "ledger_proof"
)

// ActivityEntry is one line of a user's merged history feed.
type ActivityEntry struct {
	Kind string `json:"kind"`

	// queue_status
	RequestID  string `json:"request_id,omitempty"`
	EventLabel string `json:"event_label,omitempty"`
	Status     string `json:"status,omitempty"`

	// ledger_proof
	ActionLabel     string `json:"action_label,omitempty"`
	TotalPoints     int64  `json:"total_points,omitempty"`
	TransactionRef  string `json:"transaction_ref,omitempty"`
	OrganizerWallet string `json:"organizer_wallet,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
