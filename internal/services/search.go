package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// SearchIndex abstracts the external search backend. Cleanup must unindex
// entities before soft deleting them; indexing happens when entities are
// created by extraction stages.
type SearchIndex interface {
	Index(ctx context.Context, ref types.EntityRef, ownerUserID uuid.UUID) error
	Unindex(ctx context.Context, ref types.EntityRef) error
}

type loggingSearchIndex struct {
	log *logger.Logger
}

// NewLoggingSearchIndex returns a no-op index that only logs calls. The
// real backend is wired in deployments that run one.
func NewLoggingSearchIndex(baseLog *logger.Logger) SearchIndex {
	return &loggingSearchIndex{log: baseLog.With("service", "SearchIndex")}
}

func (s *loggingSearchIndex) Index(ctx context.Context, ref types.EntityRef, ownerUserID uuid.UUID) error {
	s.log.Debug("Index entity", "kind", ref.Kind, "entity_id", ref.ID, "owner_user_id", ownerUserID)
	return nil
}

func (s *loggingSearchIndex) Unindex(ctx context.Context, ref types.EntityRef) error {
	s.log.Debug("Unindex entity", "kind", ref.Kind, "entity_id", ref.ID)
	return nil
}
