package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/repledger/backend/internal/models"
)

// PendingQueue is the persisted request store. Status changes are compare-and-swap:
// a call whose source status no longer holds fails with ErrStateConflict.
type PendingQueue interface {
	Create(ctx context.Context, a *models.PendingAction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PendingAction, error)
	ListPending(ctx context.Context, limit, offset int) ([]models.PendingAction, error)
	ListByIdentity(ctx context.Context, identity string) ([]models.PendingAction, error)
	ListInFlight(ctx context.Context, limit int) ([]models.PendingAction, error)
	Reserve(ctx context.Context, id uuid.UUID, holder string, until time.Time) (*models.PendingAction, error)
	Release(ctx context.Context, id uuid.UUID, holder string) (*models.PendingAction, error)
	ReleaseExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.PendingAction, error)
	MarkApproved(ctx context.Context, id uuid.UUID, ap models.Approval) (*models.PendingAction, error)
	MarkRejected(ctx context.Context, id uuid.UUID) (*models.PendingAction, error)
}

type SchemaRegistry interface {
	Get(ctx context.Context) (*models.Schema, error)
	Lookup(ctx context.Context, actionID string) (models.ActionDefinition, error)
}

type EventStore interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, eventID string) (*models.Event, error)
	List(ctx context.Context, limit, offset int) ([]models.Event, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// Actor types recorded in the audit log.
const (
	ActorMember    = "member"
	ActorOrganizer = "organizer"
	ActorSystem    = "system"
)

const entityRequest = "pending_action"
