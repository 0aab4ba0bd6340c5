package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/repos/entities"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// CleanupResult lists every entity a cleanup pass touched, in the order it
// was soft deleted. Reprocessing stashes these refs so the terminal stage
// of the replacement chain can purge them.
type CleanupResult struct {
	Entities []types.EntityRef `json:"entities"`
	Count    int               `json:"count"`
}

// EntityCleanupService drives the soft-delete/hard-delete lifecycle across
// every registered entity kind. Soft-deleted rows stay recoverable until a
// hard delete with the matching reason purges them.
type EntityCleanupService interface {
	SoftDeleteAndUnindex(dbc dbctx.Context, file *types.File, reason string) (*CleanupResult, error)
	HardDelete(dbc dbctx.Context, refs []types.EntityRef, reason string) error
}

type entityCleanupService struct {
	db       *gorm.DB
	log      *logger.Logger
	registry *entities.Registry
	links    entities.ExtractionLinkRepo
	search   SearchIndex
}

func NewEntityCleanupService(
	db *gorm.DB,
	baseLog *logger.Logger,
	registry *entities.Registry,
	links entities.ExtractionLinkRepo,
	search SearchIndex,
) EntityCleanupService {
	return &entityCleanupService{
		db:       db,
		log:      baseLog.With("service", "EntityCleanupService"),
		registry: registry,
		links:    links,
		search:   search,
	}
}

/*
SoftDeleteAndUnindex walks the entity registry for one file:
	- for each parent kind, list rows by file_id directly,
	- unindex and soft delete children first, then the parent,
	- stamp deleted_reason on every row,
	- finally soft delete the extraction_link junction rows.
Per-kind failures are logged and skipped so one broken table does not leave
the rest of the file's entities live.
*/
func (s *entityCleanupService) SoftDeleteAndUnindex(dbc dbctx.Context, file *types.File, reason string) (*CleanupResult, error) {
	if file == nil || file.ID == uuid.Nil {
		return nil, fmt.Errorf("missing file")
	}
	if reason == "" {
		return nil, fmt.Errorf("missing deleted_reason")
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	res := &CleanupResult{}
	for _, parent := range s.registry.Parents() {
		parentIDs, err := s.registry.ListIDsByFileID(dbc, parent.Kind, file.ID)
		if err != nil {
			s.log.Warn("Cleanup list failed, kind skipped", "kind", parent.Kind, "file_id", file.ID, "error", err)
			continue
		}
		if len(parentIDs) == 0 {
			continue
		}
		for _, child := range parent.Children {
			childIDs, err := s.registry.ListChildIDs(dbc, child, parentIDs)
			if err != nil {
				s.log.Warn("Cleanup child list failed, kind skipped", "kind", child.Kind, "file_id", file.ID, "error", err)
				continue
			}
			if len(childIDs) == 0 {
				continue
			}
			s.unindexAll(ctx, child.Kind, childIDs)
			if err := s.registry.SoftDelete(dbc, child.Kind, childIDs, reason); err != nil {
				s.log.Warn("Cleanup child soft delete failed", "kind", child.Kind, "error", err)
				continue
			}
			res.append(child.Kind, childIDs)
		}
		s.unindexAll(ctx, parent.Kind, parentIDs)
		if err := s.registry.SoftDelete(dbc, parent.Kind, parentIDs, reason); err != nil {
			s.log.Warn("Cleanup parent soft delete failed", "kind", parent.Kind, "error", err)
			continue
		}
		res.append(parent.Kind, parentIDs)
	}

	linkIDs, err := s.links.SoftDeleteByFileID(dbc, file.ID, reason)
	if err != nil {
		s.log.Warn("Cleanup extraction_link soft delete failed", "file_id", file.ID, "error", err)
	} else {
		res.append(types.KindExtractionLink, linkIDs)
	}

	s.log.Info("Soft deleted entities for file",
		"file_id", file.ID,
		"reason", reason,
		"count", res.Count,
	)
	return res, nil
}

/*
HardDelete purges previously soft-deleted rows. Refs are grouped by kind
and purged in a fixed order: child kinds, then parent kinds, the junction
last, each delete filtered by the matching deleted_reason so rows soft
deleted for another reason are never collateral. Idempotent; per-kind
failures are logged and skipped.
*/
func (s *entityCleanupService) HardDelete(dbc dbctx.Context, refs []types.EntityRef, reason string) error {
	if len(refs) == 0 {
		return nil
	}
	if reason == "" {
		return fmt.Errorf("missing deleted_reason")
	}
	byKind := map[types.EntityKind][]uuid.UUID{}
	for _, ref := range refs {
		if ref.ID == uuid.Nil {
			continue
		}
		byKind[ref.Kind] = append(byKind[ref.Kind], ref.ID)
	}

	order := make([]types.EntityKind, 0, len(types.ChildKinds)+len(types.ParentKinds)+1)
	order = append(order, types.ChildKinds...)
	order = append(order, types.ParentKinds...)
	order = append(order, types.KindExtractionLink)

	for _, kind := range order {
		ids := byKind[kind]
		if len(ids) == 0 {
			continue
		}
		n, err := s.registry.HardDelete(dbc, kind, ids, reason)
		if err != nil {
			s.log.Warn("Hard delete failed, kind skipped", "kind", kind, "error", err)
			continue
		}
		s.log.Info("Hard deleted entities", "kind", kind, "requested", len(ids), "deleted", n)
	}
	return nil
}

func (s *entityCleanupService) unindexAll(ctx context.Context, kind types.EntityKind, ids []uuid.UUID) {
	if s.search == nil {
		return
	}
	for _, id := range ids {
		if err := s.search.Unindex(ctx, types.EntityRef{Kind: kind, ID: id}); err != nil {
			s.log.Warn("Unindex failed", "kind", kind, "entity_id", id, "error", err)
		}
	}
}

func (r *CleanupResult) append(kind types.EntityKind, ids []uuid.UUID) {
	for _, id := range ids {
		r.Entities = append(r.Entities, types.EntityRef{Kind: kind, ID: id})
		r.Count++
	}
}
