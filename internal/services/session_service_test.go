package services

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/identity"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/ton"
	"go.uber.org/zap"
)

type memProofs struct {
	mu    sync.Mutex
	n     int
	valid map[string]bool
}

func (m *memProofs) CreateProofPayload(_ context.Context, ttl time.Duration) (*models.ProofPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	p := fmt.Sprintf("nonce-%d", m.n)
	m.valid[p] = true
	return &models.ProofPayload{Payload: p, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (m *memProofs) ConsumeProofPayload(_ context.Context, payload string) (*models.ProofPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.valid[payload] {
		return nil, apperr.ErrNotFound
	}
	delete(m.valid, payload)
	return &models.ProofPayload{Payload: payload, Used: true}, nil
}

type stubBridge struct {
	resolved *identity.Resolved
	err      error
}

func (b stubBridge) Verify(context.Context, string) (*identity.Resolved, error) {
	return b.resolved, b.err
}

type organizerKey struct {
	raw  string
	hash []byte
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

func newOrganizerKey(t *testing.T) organizerKey {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	hash := make([]byte, 32)
	copy(hash, pub)
	return organizerKey{raw: "0:" + hex.EncodeToString(hash), hash: hash, pub: pub, priv: priv}
}

func (k organizerKey) prove(payload string) ton.ProofData {
	proof := ton.Proof{
		Timestamp: time.Now().Unix(),
		Domain:    ton.ProofDomain{LengthBytes: len("rep.example.org"), Value: "rep.example.org"},
		Payload:   payload,
	}
	digest := ton.ProofDigest(k.hash, 0, proof)
	proof.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, digest[:]))
	return ton.ProofData{
		Address:   strings.ToUpper(k.raw),
		Network:   "-239",
		PublicKey: hex.EncodeToString(k.pub),
		Proof:     proof,
	}
}

func newSessionService(t *testing.T, organizers []string, bridge identity.Bridge) (*SessionService, *memProofs) {
	t.Helper()
	proofs := &memProofs{valid: make(map[string]bool)}
	authority := NewAuthority(ledger.NewLocal(organizers, zap.NewNop()))
	svc := NewSessionService(proofs, bridge, authority, &memAudit{}, "mainnet", []string{"rep.example.org"}, zap.NewNop())
	return svc, proofs
}

func TestOrganizerSession(t *testing.T) {
	ctx := context.Background()
	org := newOrganizerKey(t)
	stranger := newOrganizerKey(t)
	svc, _ := newSessionService(t, []string{org.raw}, nil)

	nonce, err := svc.ProofPayload(ctx)
	if err != nil {
		t.Fatal(err)
	}
	sess, err := svc.OrganizerSession(ctx, org.prove(nonce))
	if err != nil {
		t.Fatalf("OrganizerSession: %v", err)
	}
	if sess.Role != models.RoleOrganizer || sess.Wallet != org.raw || sess.Identity != "" {
		t.Errorf("session = %+v", sess)
	}

	if _, err := svc.OrganizerSession(ctx, org.prove(nonce)); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("replayed nonce error = %v, want ErrAuthorization", err)
	}

	nonce, _ = svc.ProofPayload(ctx)
	if _, err := svc.OrganizerSession(ctx, stranger.prove(nonce)); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("non-organizer error = %v, want ErrAuthorization", err)
	}

	nonce, _ = svc.ProofPayload(ctx)
	forged := org.prove(nonce)
	forged.PublicKey = hex.EncodeToString(stranger.pub)
	if _, err := svc.OrganizerSession(ctx, forged); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("forged proof error = %v, want ErrAuthorization", err)
	}

	nonce, _ = svc.ProofPayload(ctx)
	testnet := org.prove(nonce)
	testnet.Network = "-3"
	if _, err := svc.OrganizerSession(ctx, testnet); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("network mismatch error = %v, want ErrValidation", err)
	}
}

func TestMemberSession(t *testing.T) {
	tests := []struct {
		name    string
		bridge  stubBridge
		want    models.Session
		wantErr error
	}{
		{
			name:   "verified",
			bridge: stubBridge{resolved: &identity.Resolved{Identity: "alice@example.org", Wallet: "0:ALICE"}},
			want:   models.Session{Identity: "alice@example.org", Wallet: "0:alice", Role: models.RoleMember},
		},
		{
			name:    "rejected token",
			bridge:  stubBridge{err: apperr.Authorization("identity token rejected")},
			wantErr: apperr.ErrAuthorization,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newSessionService(t, nil, tt.bridge)
			got, err := svc.MemberSession(context.Background(), "token")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("MemberSession() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("MemberSession() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
