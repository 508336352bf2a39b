package handlers

import (
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/models"
	"github.com/repledger/backend/internal/services"
	"go.uber.org/zap"
)

type SchemaHandler struct {
	registry services.SchemaRegistry
	log      *zap.Logger
}

func NewSchemaHandler(registry services.SchemaRegistry, log *zap.Logger) *SchemaHandler {
	return &SchemaHandler{registry: registry, log: log}
}

type schemaView struct {
	CommunityID string                    `json:"community_id"`
	SchemaID    string                    `json:"schema_id"`
	Actions     []models.ActionDefinition `json:"actions"`
}

// GET /schema
func (h *SchemaHandler) Get(c *fiber.Ctx) error {
	schema, err := h.registry.Get(c.Context())
	if err != nil {
		return respondError(c, h.log, err)
	}

	view := schemaView{CommunityID: schema.CommunityID, SchemaID: schema.SchemaID}
	for _, def := range schema.Actions {
		view.Actions = append(view.Actions, def)
	}
	sort.Slice(view.Actions, func(i, j int) bool {
		return view.Actions[i].ActionID < view.Actions[j].ActionID
	})
	return c.JSON(dto.SuccessResponse{OK: true, Data: view})
}
