package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/middleware"
	"github.com/repledger/backend/internal/services"
	"go.uber.org/zap"
)

type EventHandler struct {
	events *services.EventService
	log    *zap.Logger
}

func NewEventHandler(events *services.EventService, log *zap.Logger) *EventHandler {
	return &EventHandler{events: events, log: log}
}

// GET /events
func (h *EventHandler) List(c *fiber.Ctx) error {
	limit, offset := paging(c)
	list, err := h.events.List(c.Context(), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: list})
}

// POST /events
func (h *EventHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateEventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ev, err := h.events.Create(c.Context(), middleware.GetSession(c), services.CreateEventInput{
		EventID:         req.EventID,
		Label:           req.Label,
		URL:             req.URL,
		OrganizerWallet: req.OrganizerWallet,
	})
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: ev})
}
