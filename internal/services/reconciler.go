package services

import (
	"context"
	"errors"
	"time"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// Reconciler settles minting requests against the ledger: an award found on the
// ledger approves its request; a lapsed lease with no award returns it to pending.
type Reconciler struct {
	queue  PendingQueue
	ledger ledger.Client
	engine *ApprovalEngine
	batch  int
	now    func() time.Time
	log    *zap.Logger
}

func NewReconciler(queue PendingQueue, l ledger.Client, engine *ApprovalEngine, log *zap.Logger) *Reconciler {
	return &Reconciler{queue: queue, ledger: l, engine: engine, batch: 100, now: time.Now, log: log}
}

type ReconcileStats struct {
	InFlight  int
	Confirmed int
	Released  int
}

func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileStats, error) {
	var stats ReconcileStats

	inflight, err := r.queue.ListInFlight(ctx, r.batch)
	if err != nil {
		return stats, err
	}
	stats.InFlight = len(inflight)
	if len(inflight) == 0 {
		return stats, nil
	}

	awards, err := r.ledger.QueryEvents(ctx, ledger.Filter{})
	if err != nil {
		return stats, err
	}
	byRef := make(map[string]models.LedgerRecord, len(awards))
	for _, a := range awards {
		if _, dup := byRef[a.Ref]; !dup {
			byRef[a.Ref] = a
		}
	}

	now := r.now()
	for i := range inflight {
		req := &inflight[i]

		if rec, ok := byRef[req.ID.String()]; ok {
			if _, err := r.engine.ConfirmFromLedger(ctx, req, rec); err != nil {
				r.logSkip(req, "confirm", err)
				continue
			}
			stats.Confirmed++
			continue
		}

		if !req.ReservationExpired(now) {
			continue
		}
		if _, err := r.engine.ExpireReservation(ctx, req); err != nil {
			r.logSkip(req, "release", err)
			continue
		}
		stats.Released++
		r.log.Info("expired reservation released",
			zap.String("request_id", req.ID.String()),
		)
	}
	return stats, nil
}

func (r *Reconciler) logSkip(req *models.PendingAction, op string, err error) {
	if errors.Is(err, apperr.ErrStateConflict) {
		r.log.Debug("request moved on before reconcile",
			zap.String("request_id", req.ID.String()),
			zap.String("op", op),
		)
		return
	}
	r.log.Error("reconcile failed",
		zap.String("request_id", req.ID.String()),
		zap.String("op", op),
		zap.Error(err),
	)
}
