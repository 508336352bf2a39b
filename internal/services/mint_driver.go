package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

// MintDriver runs one approval end to end for an organizer: reserve, write to
// the ledger, wait for confirmation, finalize. It makes exactly one attempt.
type MintDriver struct {
	engine         *ApprovalEngine
	ledger         ledger.Client
	confirmTimeout time.Duration
	log            *zap.Logger
}

func NewMintDriver(engine *ApprovalEngine, l ledger.Client, confirmTimeout time.Duration, log *zap.Logger) *MintDriver {
	return &MintDriver{engine: engine, ledger: l, confirmTimeout: confirmTimeout, log: log}
}

type MintResult struct {
	Request *models.PendingAction `json:"request"`
	Receipt *models.Receipt       `json:"receipt"`
}

// Mint returns ErrLedgerSubmission when the write did not happen (the request
// is back to pending) and ErrLedgerConfirmationTimeout when the outcome is
// unknown (the request stays minting until the reconciler settles it).
func (d *MintDriver) Mint(ctx context.Context, sess models.Session, requestID uuid.UUID, actionKey string, bonusPoints int64) (*MintResult, error) {
	payload, err := d.engine.Approve(ctx, requestID, sess.Wallet, actionKey, bonusPoints)
	if err != nil {
		return nil, err
	}

	// A previous attempt may have landed after its caller gave up.
	existing, err := d.ledger.QueryEvents(ctx, ledger.Filter{UserWallet: payload.UserWallet, Ref: payload.Ref})
	if err != nil {
		d.abort(ctx, requestID, payload.OrganizerWallet)
		return nil, fmt.Errorf("%w: look up existing award: %v", apperr.ErrLedgerSubmission, err)
	}
	if len(existing) > 0 {
		rec := existing[0]
		d.log.Info("award already on ledger, finalizing",
			zap.String("request_id", requestID.String()),
			zap.String("transaction_ref", rec.TransactionRef),
		)
		return d.finalize(ctx, requestID, payload.OrganizerWallet, awardFromRecord(rec), receiptFromRecord(rec))
	}

	sub, err := d.ledger.Submit(ctx, *payload)
	if err != nil {
		d.log.Warn("ledger submission failed",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
		d.abort(ctx, requestID, payload.OrganizerWallet)
		return nil, fmt.Errorf("%w: %v", apperr.ErrLedgerSubmission, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()

	receipt, err := d.ledger.AwaitConfirmation(waitCtx, sub)
	if err != nil {
		if errors.Is(err, ledger.ErrRejected) {
			d.abort(ctx, requestID, payload.OrganizerWallet)
			return nil, fmt.Errorf("%w: %v", apperr.ErrLedgerSubmission, err)
		}
		d.log.Warn("ledger confirmation not observed, request left minting",
			zap.String("request_id", requestID.String()),
			zap.Duration("timeout", d.confirmTimeout),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", apperr.ErrLedgerConfirmationTimeout, err)
	}

	award := models.ConfirmedAward{Payload: *payload, TransactionRef: receipt.TransactionRef}
	return d.finalize(ctx, requestID, payload.OrganizerWallet, award, receipt)
}

func (d *MintDriver) finalize(ctx context.Context, requestID uuid.UUID, organizer string, award models.ConfirmedAward, receipt *models.Receipt) (*MintResult, error) {
	req, err := d.engine.Finalize(ctx, requestID, organizer, award)
	if err != nil {
		return nil, err
	}
	return &MintResult{Request: req, Receipt: receipt}, nil
}

// abort runs even if the caller's context is gone, so a failed write never
// strands the reservation until lease expiry.
func (d *MintDriver) abort(ctx context.Context, requestID uuid.UUID, organizer string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := d.engine.Abort(ctx, requestID, organizer); err != nil {
		d.log.Error("failed to release reservation",
			zap.String("request_id", requestID.String()),
			zap.Error(err),
		)
	}
}

func receiptFromRecord(rec models.LedgerRecord) *models.Receipt {
	return &models.Receipt{Ref: rec.Ref, TransactionRef: rec.TransactionRef, ConfirmedAt: rec.Timestamp}
}
