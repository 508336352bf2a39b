package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/repledger/backend/internal/apperr"
	"go.uber.org/zap"
)

var ErrBridgeDisabled = errors.New("identity bridge is not configured")

// Resolved is what the bridge vouches for: a verified identity and the
// custodial wallet it controls.
type Resolved struct {
	Identity string `json:"identity"`
	Wallet   string `json:"wallet"`
}

// Bridge exchanges a login token from the identity provider for a Resolved identity.
type Bridge interface {
	Verify(ctx context.Context, token string) (*Resolved, error)
}

// HTTPBridge talks to the identity bridge's internal API.
type HTTPBridge struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPBridge(baseURL string, log *zap.Logger) *HTTPBridge {
	return &HTTPBridge{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

func (b *HTTPBridge) Verify(ctx context.Context, token string) (*Resolved, error) {
	if b.baseURL == "" {
		return nil, ErrBridgeDisabled
	}
	if token == "" {
		return nil, apperr.Validation("identity token is required")
	}

	body, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity bridge unavailable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, apperr.Authorization("identity token rejected")
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		b.log.Warn("identity bridge error", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("identity bridge returned %d: %s", resp.StatusCode, string(msg))
	}

	var out Resolved
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode identity bridge response: %w", err)
	}
	if out.Identity == "" || out.Wallet == "" {
		return nil, fmt.Errorf("identity bridge returned an incomplete identity")
	}
	return &out, nil
}
