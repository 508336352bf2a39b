// Package registry serves the catalog of awardable actions. The catalog is read
// once per process; a failed first read is retried on the next call.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

type Source interface {
	LoadSchema(ctx context.Context, communityID, schemaID string) (*models.Schema, error)
}

type Registry struct {
	src         Source
	communityID string
	schemaID    string
	log         *zap.Logger

	mu       sync.Mutex
	snapshot *models.Schema
}

func New(src Source, communityID, schemaID string, log *zap.Logger) *Registry {
	return &Registry{src: src, communityID: communityID, schemaID: schemaID, log: log}
}

// Get returns the cached schema, loading it on first use. Load failures are
// reported as ErrSchemaUnavailable and not cached.
func (r *Registry) Get(ctx context.Context) (*models.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot != nil {
		return r.snapshot, nil
	}

	s, err := r.src.LoadSchema(ctx, r.communityID, r.schemaID)
	if err != nil {
		r.log.Warn("action schema load failed",
			zap.String("community_id", r.communityID),
			zap.String("schema_id", r.schemaID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", apperr.ErrSchemaUnavailable, err)
	}
	if len(s.Actions) == 0 {
		return nil, fmt.Errorf("%w: schema %s/%s has no actions", apperr.ErrSchemaUnavailable, r.communityID, r.schemaID)
	}

	r.snapshot = s
	r.log.Info("action schema loaded",
		zap.String("community_id", s.CommunityID),
		zap.String("schema_id", s.SchemaID),
		zap.Int("actions", len(s.Actions)),
	)
	return s, nil
}

// Lookup resolves one action. Unknown keys are validation errors.
func (r *Registry) Lookup(ctx context.Context, actionID string) (models.ActionDefinition, error) {
	s, err := r.Get(ctx)
	if err != nil {
		return models.ActionDefinition{}, err
	}
	def, ok := s.Actions[actionID]
	if !ok {
		return models.ActionDefinition{}, apperr.Validation("unknown action %q", actionID)
	}
	return def, nil
}
