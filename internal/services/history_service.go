package services

import (
	"context"
	"sort"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// HistoryService builds a user's activity feed from the queue and the ledger.
type HistoryService struct {
	queue    PendingQueue
	ledger   ledger.Client
	registry SchemaRegistry
	log      *zap.Logger
}

func NewHistoryService(queue PendingQueue, l ledger.Client, registry SchemaRegistry, log *zap.Logger) *HistoryService {
	return &HistoryService{queue: queue, ledger: l, registry: registry, log: log}
}

// Assemble returns queue entries first, then ledger proofs, each newest first.
// The two parts are concatenated, not interleaved by time. An approved request
// is listed only while its award is not yet visible on the ledger, so an award
// never appears twice. identity may be empty, giving a ledger-only feed.
func (s *HistoryService) Assemble(ctx context.Context, identity, wallet string) ([]models.ActivityEntry, error) {
	wallet, err := s.wallet(wallet)
	if err != nil {
		return nil, err
	}
	records, err := s.ledger.QueryEvents(ctx, ledger.Filter{UserWallet: wallet})
	if err != nil {
		return nil, err
	}
	onLedger := make(map[string]bool, len(records))
	for _, r := range records {
		onLedger[r.Ref] = true
	}

	var feed []models.ActivityEntry

	if identity != "" {
		queued, err := s.queue.ListByIdentity(ctx, identity)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(queued, func(i, j int) bool {
			return queued[i].SubmittedAt.After(queued[j].SubmittedAt)
		})
		for _, a := range queued {
			status := a.Status
			switch a.Status {
			case models.ActionStatusMinting:
				status = models.ActionStatusPending
			case models.ActionStatusApproved:
				if onLedger[a.ID.String()] {
					continue
				}
			}
			feed = append(feed, models.ActivityEntry{
				Kind:       models.ActivityKindQueueStatus,
				RequestID:  a.ID.String(),
				EventLabel: a.EventLabel,
				Status:     status,
				Timestamp:  a.SubmittedAt,
			})
		}
	}

	schema, err := s.registry.Get(ctx)
	if err != nil {
		s.log.Warn("history labels unavailable", zap.Error(err))
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		feed = append(feed, models.ActivityEntry{
			Kind:            models.ActivityKindLedgerProof,
			RequestID:       r.Ref,
			ActionLabel:     schema.Label(r.ActionID),
			TotalPoints:     r.TotalPoints,
			TransactionRef:  r.TransactionRef,
			OrganizerWallet: r.OrganizerWallet,
			Timestamp:       r.Timestamp,
		})
	}
	return feed, nil
}

// Score is the wallet's cumulative reputation as the ledger reports it.
func (s *HistoryService) Score(ctx context.Context, wallet string) (int64, error) {
	wallet, err := s.wallet(wallet)
	if err != nil {
		return 0, err
	}
	return s.ledger.GetReputation(ctx, wallet)
}

func (s *HistoryService) wallet(w string) (string, error) {
	n, err := s.ledger.NormalizeWallet(w)
	if err != nil {
		return "", apperr.Validation("invalid wallet %q", w)
	}
	return n, nil
}
