package repositories

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/models"
)

// ProofRepo stores the single-use nonces organizers sign with TON Connect.
type ProofRepo struct {
	pool *pgxpool.Pool
}

func NewProofRepo(pool *pgxpool.Pool) *ProofRepo {
	return &ProofRepo{pool: pool}
}

func (r *ProofRepo) CreateProofPayload(ctx context.Context, ttl time.Duration) (*models.ProofPayload, error) {
	p := &models.ProofPayload{Payload: generateNonce(32)}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO organizer_proof_payloads (payload, expires_at)
		VALUES ($1, now() + make_interval(secs => $2))
		RETURNING id, created_at, expires_at
	`, p.Payload, ttl.Seconds()).Scan(&p.ID, &p.CreatedAt, &p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ConsumeProofPayload marks the nonce used. Unknown, expired and already used
// nonces all come back as ErrNotFound.
func (r *ProofRepo) ConsumeProofPayload(ctx context.Context, payload string) (*models.ProofPayload, error) {
	var p models.ProofPayload
	err := r.pool.QueryRow(ctx, `
		UPDATE organizer_proof_payloads
		SET used = true
		WHERE payload = $1 AND used = false AND expires_at > now()
		RETURNING id, payload, created_at, expires_at, used
	`, payload).Scan(&p.ID, &p.Payload, &p.CreatedAt, &p.ExpiresAt, &p.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func generateNonce(bytes int) string {
	b := make([]byte, bytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
