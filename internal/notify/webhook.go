// Package notify turns award stream events into member notifications and
// delivers them to an outbound webhook.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

type Notification struct {
	Wallet    string `json:"wallet"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text"`
}

// FromEvent builds the member-facing notification for an event. Events with no
// wallet, or that members do not care about, yield ok == false.
func FromEvent(e events.Event) (n Notification, ok bool) {
	wallet := e.Wallet()
	if wallet == "" {
		return n, false
	}
	str := func(k string) string {
		v, _ := e.Payload[k].(string)
		return v
	}

	n = Notification{Wallet: wallet, Type: e.Type, RequestID: str("request_id")}
	label := str("event_label")
	switch e.Type {
	case events.EventRequestSubmitted:
		n.Text = fmt.Sprintf("Your request for %q was received.", label)
	case events.EventAwardConfirmed:
		n.Text = fmt.Sprintf("You earned %v reputation points for %q.", e.Payload["total_points"], label)
	case events.EventRequestStatusChanged:
		if str("new_status") != models.ActionStatusRejected {
			return n, false
		}
		n.Text = fmt.Sprintf("Your request for %q was not approved.", label)
	default:
		return n, false
	}
	return n, true
}

// SignatureHeader carries "sha256=<hex hmac of the body>" when a secret is set.
const SignatureHeader = "X-Repledger-Signature"

// Webhook posts notifications as JSON. An empty URL disables delivery.
type Webhook struct {
	url        string
	secret     string
	httpClient *http.Client
	log        *zap.Logger
}

func NewWebhook(url, secret string, log *zap.Logger) *Webhook {
	return &Webhook{
		url:    strings.TrimRight(url, "/"),
		secret: secret,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (w *Webhook) Enabled() bool { return w.url != "" }

func (w *Webhook) Send(ctx context.Context, n Notification) error {
	if !w.Enabled() {
		return nil
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify webhook unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify webhook returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Forward is a Subscriber handler: it delivers the event's notification if it
// has one and logs failures.
func (w *Webhook) Forward(ctx context.Context) func(events.Event) {
	return func(e events.Event) {
		n, ok := FromEvent(e)
		if !ok {
			return
		}
		if err := w.Send(ctx, n); err != nil {
			w.log.Warn("failed to forward notification",
				zap.String("type", e.Type),
				zap.String("wallet", n.Wallet),
				zap.Error(err),
			)
			return
		}
		w.log.Debug("notification forwarded", zap.String("type", e.Type), zap.String("wallet", n.Wallet))
	}
}
