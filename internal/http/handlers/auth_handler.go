package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/auth"
	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/services"
	"github.com/repledger/backend/internal/ton"
	"go.uber.org/zap"
)

type AuthHandler struct {
	sessions *services.SessionService
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthHandler(sessions *services.SessionService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, cfg: cfg, log: log}
}

// IdentityAuth opens a member session from an identity provider token.
// POST /auth/identity
func (h *AuthHandler) IdentityAuth(c *fiber.Ctx) error {
	var req dto.IdentityAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Token == "" {
		return badRequest(c, "token is required")
	}

	sess, err := h.sessions.MemberSession(c.Context(), req.Token)
	if err != nil {
		h.log.Debug("identity auth failed", zap.Error(err))
		return respondError(c, h.log, err)
	}
	return h.issue(c, sess)
}

// ProofPayload issues a nonce for an organizer's TON Connect proof.
// POST /auth/organizer/proof-payload
func (h *AuthHandler) ProofPayload(c *fiber.Ctx) error {
	payload, err := h.sessions.ProofPayload(c.Context())
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.ProofPayloadResponse{Payload: payload})
}

// OrganizerConnect opens an organizer session after checking the TON proof.
// POST /auth/organizer/connect
func (h *AuthHandler) OrganizerConnect(c *fiber.Ctx) error {
	var req dto.OrganizerConnectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" {
		return badRequest(c, "address, public_key, and proof.signature are required")
	}

	sess, err := h.sessions.OrganizerSession(c.Context(), ton.ProofData{
		Address:   req.Address,
		Network:   req.Network,
		PublicKey: req.PublicKey,
		Proof:     req.Proof,
	})
	if err != nil {
		h.log.Debug("organizer connect failed", zap.Error(err))
		return respondError(c, h.log, err)
	}
	return h.issue(c, sess)
}

func (h *AuthHandler) issue(c *fiber.Ctx, sess models.Session) error {
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, sess, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.AuthResponse{Token: token, Session: sess})
}
