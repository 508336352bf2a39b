package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/models"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

func (r *EventRepo) Create(ctx context.Context, e *models.Event) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO events (event_id, label, url, organizer_wallet, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.EventID, e.Label, e.URL, e.OrganizerWallet, e.CreatedBy).Scan(&e.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.StateConflict("event %s already exists", e.EventID)
	}
	return err
}

func (r *EventRepo) GetByID(ctx context.Context, eventID string) (*models.Event, error) {
	var e models.Event
	err := r.pool.QueryRow(ctx, `
		SELECT event_id, label, url, organizer_wallet, created_by, created_at
		FROM events WHERE event_id = $1
	`, eventID).Scan(&e.EventID, &e.Label, &e.URL, &e.OrganizerWallet, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: event %s", apperr.ErrNotFound, eventID)
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT event_id, label, url, organizer_wallet, created_by, created_at
		FROM events ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.EventID, &e.Label, &e.URL, &e.OrganizerWallet, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
