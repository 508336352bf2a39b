package models

import "time"

// Event is a real-world occasion requests are submitted against.
// OrganizerWallet, when set, is the only organizer allowed to decide its requests.
type Event struct {
	EventID         string    `json:"event_id"`
	Label           string    `json:"label"`
	URL             *string   `json:"url,omitempty"`
	OrganizerWallet *string   `json:"organizer_wallet,omitempty"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}
