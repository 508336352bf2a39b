// Package ledger talks to the append-only award ledger. Two backends exist: Local,
// a hash-chained file ledger for development and tests, and TON, which records
// awards as comment messages to the reputation contract.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/repledger/backend/internal/config"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrRejected means the ledger refused the write outright (bad organizer,
	// malformed payload, bounced message). The award was not recorded.
	ErrRejected = errors.New("ledger: write rejected")
	// ErrInvalidWallet is returned by NormalizeWallet for unparseable addresses.
	ErrInvalidWallet = errors.New("ledger: invalid wallet address")
	// ErrMinterDisabled means the backend has no signing key for server-driven writes.
	ErrMinterDisabled = errors.New("ledger: minter not configured")
)

// Filter narrows QueryEvents. Empty fields match everything.
type Filter struct {
	UserWallet string
	Ref        string
}

func (f Filter) matches(r *models.LedgerRecord) bool {
	if f.UserWallet != "" && r.UserWallet != f.UserWallet {
		return false
	}
	if f.Ref != "" && r.Ref != f.Ref {
		return false
	}
	return true
}

// Submission is the handle returned by Submit and consumed by AwaitConfirmation.
type Submission struct {
	Ref            string
	UserWallet     string
	TransactionRef string // known up front on Local, filled on confirmation for TON
	SubmittedAt    time.Time
}

type Client interface {
	// Submit broadcasts the award write. It does not wait for inclusion.
	Submit(ctx context.Context, payload models.AwardPayload) (*Submission, error)
	// AwaitConfirmation blocks until the award is visible on the ledger, the
	// ledger reports failure (ErrRejected) or ctx is done (ctx.Err()).
	AwaitConfirmation(ctx context.Context, sub *Submission) (*models.Receipt, error)
	// QueryEvents returns matching award records oldest first.
	QueryEvents(ctx context.Context, f Filter) ([]models.LedgerRecord, error)
	GetReputation(ctx context.Context, wallet string) (int64, error)
	IsOrganizer(ctx context.Context, wallet string) (bool, error)
	// NormalizeWallet returns the canonical form used for equality checks.
	NormalizeWallet(wallet string) (string, error)
}

// New builds the backend selected by LEDGER_BACKEND.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (Client, error) {
	switch cfg.LedgerBackend {
	case config.LedgerBackendTON:
		c, err := NewTON(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.LedgerBackendLocal, "":
		l, err := OpenLocal(cfg.LedgerDataDir, cfg.OrganizerWallets, log)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.LedgerBackend)
	}
}

func receiptFrom(r *models.LedgerRecord) *models.Receipt {
	return &models.Receipt{
		Ref:            r.Ref,
		TransactionRef: r.TransactionRef,
		ConfirmedAt:    r.Timestamp,
	}
}
