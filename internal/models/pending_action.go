package models

import (
	"time"

	"github.com/google/uuid"
)

// Pending action statuses
const (
	ActionStatusPending  = "pending"
	ActionStatusMinting  = "minting"
	ActionStatusApproved = "approved"
	ActionStatusRejected = "rejected"
)

// Valid state transitions: from -> []to
var ValidActionTransitions = map[string][]string{
	ActionStatusPending:  {ActionStatusMinting, ActionStatusApproved, ActionStatusRejected},
	ActionStatusMinting:  {ActionStatusPending, ActionStatusApproved},
	ActionStatusApproved: {},
	ActionStatusRejected: {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidActionTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsOpen reports whether the request has not yet reached a terminal status.
// A minting request is still open: its ledger write has not been confirmed.
func IsOpen(status string) bool {
	return status == ActionStatusPending || status == ActionStatusMinting
}

type PendingAction struct {
	ID                uuid.UUID  `json:"id"`
	SubmitterIdentity string     `json:"submitter_identity"`
	SubmitterWallet   string     `json:"submitter_wallet"`
	EventID           string     `json:"event_id"`
	EventLabel        string     `json:"event_label"`
	ActionKey         *string    `json:"action_key,omitempty"`
	BasePoints        *int64     `json:"base_points,omitempty"`
	BonusPoints       int64      `json:"bonus_points"`
	TotalPoints       *int64     `json:"total_points,omitempty"`
	Status            string     `json:"status"`
	ReservedBy        *string    `json:"reserved_by,omitempty"`
	ReservedUntil     *time.Time `json:"reserved_until,omitempty"`
	ApprovedBy        *string    `json:"approved_by,omitempty"`
	TransactionRef    *string    `json:"transaction_ref,omitempty"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ReservationExpired reports whether a minting lease has lapsed at now.
func (a *PendingAction) ReservationExpired(now time.Time) bool {
	if a.Status != ActionStatusMinting || a.ReservedUntil == nil {
		return false
	}
	return now.After(*a.ReservedUntil)
}

// Approval is what the queue persists when a request is finalized.
type Approval struct {
	ActionKey      string
	BasePoints     int64
	BonusPoints    int64
	TotalPoints    int64
	ApprovedBy     string
	TransactionRef string
}
