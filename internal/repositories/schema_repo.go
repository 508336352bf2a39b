package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/models"
)

type SchemaRepo struct {
	pool *pgxpool.Pool
}

func NewSchemaRepo(pool *pgxpool.Pool) *SchemaRepo {
	return &SchemaRepo{pool: pool}
}

func (r *SchemaRepo) LoadSchema(ctx context.Context, communityID, schemaID string) (*models.Schema, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT true FROM action_schemas WHERE community_id = $1 AND schema_id = $2
	`, communityID, schemaID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: schema %s/%s", apperr.ErrNotFound, communityID, schemaID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT action_id, label, base_points, bonus_cap
		FROM action_definitions
		WHERE community_id = $1 AND schema_id = $2
		ORDER BY position, action_id
	`, communityID, schemaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := &models.Schema{
		CommunityID: communityID,
		SchemaID:    schemaID,
		Actions:     make(map[string]models.ActionDefinition),
	}
	for rows.Next() {
		var d models.ActionDefinition
		if err := rows.Scan(&d.ActionID, &d.Label, &d.BasePoints, &d.BonusCap); err != nil {
			return nil, err
		}
		s.Actions[d.ActionID] = d
	}
	return s, rows.Err()
}
