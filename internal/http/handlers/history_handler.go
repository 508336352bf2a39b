package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/middleware"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/services"
	"go.uber.org/zap"
)

type HistoryHandler struct {
	history *services.HistoryService
	log     *zap.Logger
}

func NewHistoryHandler(history *services.HistoryService, log *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, log: log}
}

// GET /me/history
func (h *HistoryHandler) Mine(c *fiber.Ctx) error {
	sess := middleware.GetSession(c)
	return h.assemble(c, sess.Identity, sess.Wallet)
}

// Public view of a wallet: ledger proofs only.
// GET /wallets/:wallet/history
func (h *HistoryHandler) Wallet(c *fiber.Ctx) error {
	return h.assemble(c, "", c.Params("wallet"))
}

// GET /me/reputation
func (h *HistoryHandler) MyReputation(c *fiber.Ctx) error {
	return h.score(c, middleware.GetSession(c).Wallet)
}

// GET /wallets/:wallet/reputation
func (h *HistoryHandler) WalletReputation(c *fiber.Ctx) error {
	return h.score(c, c.Params("wallet"))
}

func (h *HistoryHandler) assemble(c *fiber.Ctx, identity, wallet string) error {
	entries, err := h.history.Assemble(c.Context(), identity, wallet)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if entries == nil {
		entries = []models.ActivityEntry{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.HistoryResponse{Wallet: wallet, Entries: entries}})
}

func (h *HistoryHandler) score(c *fiber.Ctx, wallet string) error {
	score, err := h.history.Score(c.Context(), wallet)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ReputationResponse{Wallet: wallet, Score: score}})
}
