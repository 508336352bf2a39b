package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/http/dto"
	"github.com/repledger/backend/internal/identity"
	"github.com/repledger/backend/internal/middleware"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrAuthorization):
		return fiber.StatusForbidden
	case errors.Is(err, apperr.ErrValidation):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrStateConflict):
		return fiber.StatusConflict
	case errors.Is(err, apperr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperr.ErrLedgerSubmission):
		return fiber.StatusBadGateway
	case errors.Is(err, apperr.ErrLedgerConfirmationTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, apperr.ErrSchemaUnavailable), errors.Is(err, identity.ErrBridgeDisabled):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Unclassified errors are
// logged and hidden behind a generic message.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		msg = "internal error"
	}
	return c.Status(status).JSON(dto.ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(c),
		Retryable: apperr.Retryable(err),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
		Error:     msg,
		RequestID: middleware.GetRequestID(c),
	})
}

func requestID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func paging(c *fiber.Ctx) (limit, offset int) {
	limit = defaultLimit
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
