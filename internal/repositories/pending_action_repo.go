package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/models"
)

// Every status change below is a single UPDATE guarded by the allowed source
// status. A miss is resolved to ErrNotFound or ErrStateConflict by re-reading.
type PendingActionRepo struct {
	pool *pgxpool.Pool
}

func NewPendingActionRepo(pool *pgxpool.Pool) *PendingActionRepo {
	return &PendingActionRepo{pool: pool}
}

const pendingActionColumns = `
	id, submitter_identity, submitter_wallet, event_id, event_label,
	action_key, base_points, bonus_points, total_points, status,
	reserved_by, reserved_until, approved_by, transaction_ref,
	submitted_at, updated_at`

func scanPendingAction(row pgx.Row) (*models.PendingAction, error) {
	var a models.PendingAction
	err := row.Scan(&a.ID, &a.SubmitterIdentity, &a.SubmitterWallet, &a.EventID, &a.EventLabel,
		&a.ActionKey, &a.BasePoints, &a.BonusPoints, &a.TotalPoints, &a.Status,
		&a.ReservedBy, &a.ReservedUntil, &a.ApprovedBy, &a.TransactionRef,
		&a.SubmittedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PendingActionRepo) Create(ctx context.Context, a *models.PendingAction) error {
	a.Status = models.ActionStatusPending
	return r.pool.QueryRow(ctx, `
		INSERT INTO pending_actions (submitter_identity, submitter_wallet, event_id, event_label, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, submitted_at, updated_at
	`, a.SubmitterIdentity, a.SubmitterWallet, a.EventID, a.EventLabel, a.Status,
	).Scan(&a.ID, &a.SubmittedAt, &a.UpdatedAt)
}

func (r *PendingActionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx,
		`SELECT `+pendingActionColumns+` FROM pending_actions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: request %s", apperr.ErrNotFound, id)
	}
	return a, err
}

// ListPending returns requests awaiting review in submission order.
func (r *PendingActionRepo) ListPending(ctx context.Context, limit, offset int) ([]models.PendingAction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return r.list(ctx, `
		SELECT `+pendingActionColumns+` FROM pending_actions
		WHERE status = 'pending'
		ORDER BY submitted_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, limit, offset)
}

func (r *PendingActionRepo) ListByIdentity(ctx context.Context, identity string) ([]models.PendingAction, error) {
	return r.list(ctx, `
		SELECT `+pendingActionColumns+` FROM pending_actions
		WHERE submitter_identity = $1
		ORDER BY submitted_at DESC
	`, identity)
}

// ListInFlight returns minting requests, oldest lease first.
func (r *PendingActionRepo) ListInFlight(ctx context.Context, limit int) ([]models.PendingAction, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.list(ctx, `
		SELECT `+pendingActionColumns+` FROM pending_actions
		WHERE status = 'minting'
		ORDER BY reserved_until ASC
		LIMIT $1
	`, limit)
}

func (r *PendingActionRepo) list(ctx context.Context, query string, args ...any) ([]models.PendingAction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingAction
	for rows.Next() {
		a, err := scanPendingAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Reserve moves pending -> minting for holder until the lease expires.
func (r *PendingActionRepo) Reserve(ctx context.Context, id uuid.UUID, holder string, until time.Time) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx, `
		UPDATE pending_actions
		SET status = 'minting', reserved_by = $2, reserved_until = $3, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+pendingActionColumns, id, holder, until))
	return r.casResult(ctx, id, "reserve", a, err)
}

// Release moves minting -> pending. Only the holder of the reservation may release it.
func (r *PendingActionRepo) Release(ctx context.Context, id uuid.UUID, holder string) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx, `
		UPDATE pending_actions
		SET status = 'pending', reserved_by = NULL, reserved_until = NULL, updated_at = now()
		WHERE id = $1 AND status = 'minting' AND reserved_by = $2
		RETURNING `+pendingActionColumns, id, holder))
	return r.casResult(ctx, id, "release", a, err)
}

// ReleaseExpired moves minting -> pending when the lease lapsed before now.
func (r *PendingActionRepo) ReleaseExpired(ctx context.Context, id uuid.UUID, now time.Time) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx, `
		UPDATE pending_actions
		SET status = 'pending', reserved_by = NULL, reserved_until = NULL, updated_at = now()
		WHERE id = $1 AND status = 'minting' AND reserved_until < $2
		RETURNING `+pendingActionColumns, id, now))
	return r.casResult(ctx, id, "release expired", a, err)
}

func (r *PendingActionRepo) MarkApproved(ctx context.Context, id uuid.UUID, ap models.Approval) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx, `
		UPDATE pending_actions
		SET status = 'approved',
		    action_key = $2, base_points = $3, bonus_points = $4, total_points = $5,
		    approved_by = $6, transaction_ref = $7,
		    reserved_by = NULL, reserved_until = NULL, updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'minting')
		RETURNING `+pendingActionColumns,
		id, ap.ActionKey, ap.BasePoints, ap.BonusPoints, ap.TotalPoints, ap.ApprovedBy, ap.TransactionRef))
	return r.casResult(ctx, id, "approve", a, err)
}

func (r *PendingActionRepo) MarkRejected(ctx context.Context, id uuid.UUID) (*models.PendingAction, error) {
	a, err := scanPendingAction(r.pool.QueryRow(ctx, `
		UPDATE pending_actions
		SET status = 'rejected', updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+pendingActionColumns, id))
	return r.casResult(ctx, id, "reject", a, err)
}

func (r *PendingActionRepo) casResult(ctx context.Context, id uuid.UUID, op string, a *models.PendingAction, err error) (*models.PendingAction, error) {
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	cur, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, apperr.StateConflict("cannot %s request %s in status %s", op, id, cur.Status)
}
