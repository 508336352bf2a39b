package events

import (
	"context"
	"time"
)

// StreamAward carries every request lifecycle change. The WebSocket hub and the
// notify bridge both consume it.
const StreamAward = "events:award"

// Event types
const (
	EventRequestSubmitted     = "request_submitted"
	EventRequestStatusChanged = "request_status_changed"
	EventAwardConfirmed       = "award_confirmed"
	EventEventCreated         = "event_created"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
	At      time.Time      `json:"at"`
}

// Wallet returns the wallet the event concerns, if any.
func (e Event) Wallet() string {
	w, _ := e.Payload["wallet"].(string)
	return w
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

// NopPublisher drops events. Used when Redis is not wired, e.g. in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
