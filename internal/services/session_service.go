package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/identity"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/ton"
	"go.uber.org/zap"
)

const proofPayloadTTL = 5 * time.Minute

type ProofStore interface {
	CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.ProofPayload, error)
	ConsumeProofPayload(ctx context.Context, payload string) (*models.ProofPayload, error)
}

// SessionService opens sessions: members through the identity bridge,
// organizers by proving control of an organizer wallet with TON Connect.
type SessionService struct {
	proofs         ProofStore
	bridge         identity.Bridge
	authority      *Authority
	auditRepo      AuditStore
	network        string
	allowedDomains []string
	log            *zap.Logger
}

func NewSessionService(
	proofs ProofStore,
	bridge identity.Bridge,
	authority *Authority,
	auditRepo AuditStore,
	network string,
	allowedDomains []string,
	log *zap.Logger,
) *SessionService {
	return &SessionService{
		proofs:         proofs,
		bridge:         bridge,
		authority:      authority,
		auditRepo:      auditRepo,
		network:        network,
		allowedDomains: allowedDomains,
		log:            log,
	}
}

// MemberSession exchanges an identity provider token for a member session.
func (s *SessionService) MemberSession(ctx context.Context, token string) (models.Session, error) {
	resolved, err := s.bridge.Verify(ctx, token)
	if err != nil {
		return models.Session{}, err
	}
	wallet, err := s.authority.NormalizeWallet(resolved.Wallet)
	if err != nil {
		return models.Session{}, err
	}
	return models.Session{Identity: resolved.Identity, Wallet: wallet, Role: models.RoleMember}, nil
}

// ProofPayload issues a single-use nonce for an organizer's ton_proof.
func (s *SessionService) ProofPayload(ctx context.Context) (string, error) {
	p, err := s.proofs.CreateProofPayload(ctx, proofPayloadTTL)
	if err != nil {
		return "", fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p.Payload, nil
}

// OrganizerSession verifies a ton_proof and checks the wallet's organizer
// authority on the ledger.
func (s *SessionService) OrganizerSession(ctx context.Context, pd ton.ProofData) (models.Session, error) {
	if _, err := s.proofs.ConsumeProofPayload(ctx, pd.Proof.Payload); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return models.Session{}, apperr.Authorization("invalid or expired proof payload")
		}
		return models.Session{}, err
	}

	workchain, addrHash, err := ton.ParseRawAddress(pd.Address)
	if err != nil {
		return models.Session{}, apperr.Validation("invalid TON address: %v", err)
	}
	if network := ton.NetworkName(pd.Network); network != "" && s.network != "" && network != s.network {
		return models.Session{}, apperr.Validation("network mismatch: expected %s, got %s", s.network, network)
	}
	if err := ton.VerifyProof(pd.PublicKey, addrHash, workchain, pd.Proof, s.allowedDomains); err != nil {
		return models.Session{}, apperr.Authorization("TON proof verification failed: %v", err)
	}

	org, err := s.authority.Organizer(ctx, pd.Address)
	if err != nil {
		return models.Session{}, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorWallet: &org,
		ActorType:   ActorOrganizer,
		Action:      "organizer_connected",
		EntityType:  "session",
		Meta:        map[string]any{"network": pd.Network, "domain": pd.Proof.Domain.Value},
	})
	s.log.Info("organizer connected", zap.String("wallet", org))

	return models.Session{Wallet: org, Role: models.RoleOrganizer}, nil
}
