package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// QueueService is the submitter-facing side of the pending action queue.
type QueueService struct {
	queue     PendingQueue
	eventRepo EventStore
	auditRepo AuditStore
	authority *Authority
	publisher events.Publisher
	log       *zap.Logger
}

func NewQueueService(
	queue PendingQueue,
	eventRepo EventStore,
	auditRepo AuditStore,
	authority *Authority,
	publisher events.Publisher,
	log *zap.Logger,
) *QueueService {
	return &QueueService{
		queue:     queue,
		eventRepo: eventRepo,
		auditRepo: auditRepo,
		authority: authority,
		publisher: publisher,
		log:       log,
	}
}

// Submit files a new pending request for the session's identity. Any
// authenticated submitter may submit; duplicates are accepted.
func (s *QueueService) Submit(ctx context.Context, sess models.Session, eventID string) (*models.PendingAction, error) {
	if sess.Identity == "" {
		return nil, apperr.Validation("an identity session is required to submit")
	}
	if eventID == "" {
		return nil, apperr.Validation("event_id is required")
	}
	wallet, err := s.authority.NormalizeWallet(sess.Wallet)
	if err != nil {
		return nil, err
	}

	ev, err := s.eventRepo.GetByID(ctx, eventID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Validation("unknown event %q", eventID)
	}
	if err != nil {
		return nil, err
	}

	a := &models.PendingAction{
		SubmitterIdentity: sess.Identity,
		SubmitterWallet:   wallet,
		EventID:           ev.EventID,
		EventLabel:        ev.Label,
	}
	if err := s.queue.Create(ctx, a); err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorWallet: &wallet,
		ActorType:   ActorMember,
		Action:      "request_submitted",
		EntityType:  entityRequest,
		EntityID:    &a.ID,
		Meta:        map[string]any{"event_id": ev.EventID},
	})
	_ = s.publisher.Publish(ctx, events.StreamAward, events.Event{
		Type: events.EventRequestSubmitted,
		Payload: map[string]any{
			"request_id":  a.ID.String(),
			"wallet":      wallet,
			"event_id":    ev.EventID,
			"event_label": ev.Label,
		},
	})

	s.log.Info("request submitted",
		zap.String("request_id", a.ID.String()),
		zap.String("event_id", ev.EventID),
	)
	return a, nil
}

// ListPending is the organizer review list, in submission order.
func (s *QueueService) ListPending(ctx context.Context, sess models.Session, limit, offset int) ([]models.PendingAction, error) {
	if _, err := s.authority.Organizer(ctx, sess.Wallet); err != nil {
		return nil, err
	}
	return s.queue.ListPending(ctx, limit, offset)
}

func (s *QueueService) ListMine(ctx context.Context, sess models.Session) ([]models.PendingAction, error) {
	if sess.Identity == "" {
		return nil, nil
	}
	return s.queue.ListByIdentity(ctx, sess.Identity)
}

// AuditTrail is visible to organizers and to the request's submitter.
func (s *QueueService) AuditTrail(ctx context.Context, sess models.Session, id uuid.UUID) ([]models.AuditLog, error) {
	req, err := s.queue.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Identity == "" || req.SubmitterIdentity != sess.Identity {
		if _, err := s.authority.Organizer(ctx, sess.Wallet); err != nil {
			return nil, err
		}
	}
	return s.auditRepo.GetByEntity(ctx, entityRequest, id, 100, 0)
}
