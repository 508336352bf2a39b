package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/middleware"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/services"
	"go.uber.org/zap"
)

// RequestHandler serves the pending action queue and its review operations.
type RequestHandler struct {
	queue  *services.QueueService
	engine *services.ApprovalEngine
	driver *services.MintDriver
	log    *zap.Logger
}

func NewRequestHandler(queue *services.QueueService, engine *services.ApprovalEngine, driver *services.MintDriver, log *zap.Logger) *RequestHandler {
	return &RequestHandler{queue: queue, engine: engine, driver: driver, log: log}
}

// POST /requests
func (h *RequestHandler) Submit(c *fiber.Ctx) error {
	var req dto.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	a, err := h.queue.Submit(c.Context(), middleware.GetSession(c), req.EventID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: a})
}

// GET /requests/mine
func (h *RequestHandler) Mine(c *fiber.Ctx) error {
	list, err := h.queue.ListMine(c.Context(), middleware.GetSession(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// GET /requests/pending
func (h *RequestHandler) Pending(c *fiber.Ctx) error {
	limit, offset := paging(c)
	list, err := h.queue.ListPending(c.Context(), middleware.GetSession(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// Approve reserves the request and returns the ledger payload for the
// organizer's own wallet to submit.
// POST /requests/:id/approve
func (h *RequestHandler) Approve(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	payload, err := h.engine.Approve(c.Context(), id, middleware.GetSession(c).Wallet, req.ActionKey, req.BonusPoints)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: payload})
}

// POST /requests/:id/abort
func (h *RequestHandler) Abort(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	a, err := h.engine.Abort(c.Context(), id, middleware.GetSession(c).Wallet)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: a})
}

// POST /requests/:id/finalize
func (h *RequestHandler) Finalize(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	var req dto.FinalizeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	award := models.ConfirmedAward{Payload: req.Payload, TransactionRef: req.TransactionRef}
	a, err := h.engine.Finalize(c.Context(), id, middleware.GetSession(c).Wallet, award)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: a})
}

// POST /requests/:id/reject
func (h *RequestHandler) Reject(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	a, err := h.engine.Reject(c.Context(), id, middleware.GetSession(c).Wallet)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: a})
}

// Mint runs approve, ledger write and finalize server-side.
// POST /requests/:id/mint
func (h *RequestHandler) Mint(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	var req dto.ApproveRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.driver.Mint(c.Context(), middleware.GetSession(c), id, req.ActionKey, req.BonusPoints)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: res})
}

// GET /requests/:id/audit
func (h *RequestHandler) Audit(c *fiber.Ctx) error {
	id, err := requestID(c)
	if err != nil {
		return badRequest(c, "invalid request id")
	}
	trail, err := h.queue.AuditTrail(c.Context(), middleware.GetSession(c), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: trail})
}
