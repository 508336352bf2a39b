package dto

import (
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/ton"
)

type IdentityAuthRequest struct {
	Token string `json:"token"`
}

type OrganizerConnectRequest struct {
	Address   string    `json:"address"` // raw: "0:abc..."
	Network   string    `json:"network"`
	PublicKey string    `json:"public_key"` // hex
	Proof     ton.Proof `json:"proof"`
}

type SubmitRequest struct {
	EventID string `json:"event_id"`
}

// ApproveRequest is shared by approve and mint.
type ApproveRequest struct {
	ActionKey   string `json:"action_key"`
	BonusPoints int64  `json:"bonus_points"`
}

type FinalizeRequest struct {
	Payload        models.AwardPayload `json:"payload"`
	TransactionRef string              `json:"transaction_ref"`
}

type CreateEventRequest struct {
	EventID         string `json:"event_id"`
	Label           string `json:"label,omitempty"`
	URL             string `json:"url,omitempty"`
	OrganizerWallet string `json:"organizer_wallet,omitempty"`
}
