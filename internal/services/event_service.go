package services

import (
	"context"
	"strings"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// TitleFetcher reads a human title from an event page.
type TitleFetcher interface {
	FetchTitle(ctx context.Context, url string) (string, error)
}

// EventService is the directory of events requests can be filed against.
type EventService struct {
	repo      EventStore
	fetcher   TitleFetcher
	authority *Authority
	auditRepo AuditStore
	publisher events.Publisher
	log       *zap.Logger
}

func NewEventService(repo EventStore, fetcher TitleFetcher, authority *Authority, auditRepo AuditStore, publisher events.Publisher, log *zap.Logger) *EventService {
	return &EventService{repo: repo, fetcher: fetcher, authority: authority, auditRepo: auditRepo, publisher: publisher, log: log}
}

type CreateEventInput struct {
	EventID         string
	Label           string
	URL             string
	OrganizerWallet string
}

// Create registers an event. Organizers only. Without a label the page title at
// URL is used, falling back to the event id when the page cannot be read.
func (s *EventService) Create(ctx context.Context, sess models.Session, in CreateEventInput) (*models.Event, error) {
	org, err := s.authority.Organizer(ctx, sess.Wallet)
	if err != nil {
		return nil, err
	}

	in.EventID = strings.TrimSpace(in.EventID)
	in.Label = strings.TrimSpace(in.Label)
	in.URL = strings.TrimSpace(in.URL)
	if in.EventID == "" {
		return nil, apperr.Validation("event_id is required")
	}
	if in.Label == "" && in.URL == "" {
		return nil, apperr.Validation("label or url is required")
	}

	ev := &models.Event{EventID: in.EventID, Label: in.Label, CreatedBy: org}
	if in.URL != "" {
		ev.URL = &in.URL
	}
	if in.OrganizerWallet != "" {
		w, err := s.authority.NormalizeWallet(in.OrganizerWallet)
		if err != nil {
			return nil, err
		}
		ev.OrganizerWallet = &w
	}

	if ev.Label == "" {
		title, err := s.fetcher.FetchTitle(ctx, in.URL)
		if err != nil || title == "" {
			s.log.Warn("event title fetch failed, using id",
				zap.String("event_id", in.EventID),
				zap.String("url", in.URL),
				zap.Error(err),
			)
			title = in.EventID
		}
		ev.Label = title
	}

	if err := s.repo.Create(ctx, ev); err != nil {
		return nil, err
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorWallet: &org,
		ActorType:   ActorOrganizer,
		Action:      "event_created",
		EntityType:  "event",
		Meta:        map[string]any{"event_id": ev.EventID, "label": ev.Label},
	})
	_ = s.publisher.Publish(ctx, events.StreamAward, events.Event{
		Type:    events.EventEventCreated,
		Payload: map[string]any{"event_id": ev.EventID, "label": ev.Label},
	})
	return ev, nil
}

func (s *EventService) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *EventService) Get(ctx context.Context, eventID string) (*models.Event, error) {
	return s.repo.GetByID(ctx, eventID)
}
