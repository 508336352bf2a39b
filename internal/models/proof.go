package models

import (
	"time"

	"github.com/google/uuid"
)

// ProofPayload is a single-use nonce an organizer wallet signs with TON Connect.
type ProofPayload struct {
	ID        uuid.UUID `json:"id"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"-"`
	ExpiresAt time.Time `json:"-"`
	Used      bool      `json:"-"`
}
