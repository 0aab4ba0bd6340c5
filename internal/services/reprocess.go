package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	filerepos "github.com/papervault/papervault-backend/internal/data/repos/files"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// ReprocessService re-runs the extraction chain for a file whose original
// blob is still retained. Existing entities are soft deleted up front and
// only purged by the new chain's terminal stage, so a crash mid-reprocess
// leaves the old data recoverable.
type ReprocessService interface {
	Reprocess(dbc dbctx.Context, fileID uuid.UUID, force bool) (*types.JobRun, error)
}

type reprocessService struct {
	log        *logger.Logger
	db         *gorm.DB
	files      filerepos.FileRepo
	blob       gcp.BlobStore
	cleanup    EntityCleanupService
	dispatcher ChainDispatcher
}

func NewReprocessService(
	db *gorm.DB,
	baseLog *logger.Logger,
	files filerepos.FileRepo,
	blob gcp.BlobStore,
	cleanup EntityCleanupService,
	dispatcher ChainDispatcher,
) ReprocessService {
	return &reprocessService{
		log:        baseLog.With("service", "ReprocessService"),
		db:         db,
		files:      files,
		blob:       blob,
		cleanup:    cleanup,
		dispatcher: dispatcher,
	}
}

func (s *reprocessService) Reprocess(dbc dbctx.Context, fileID uuid.UUID, force bool) (*types.JobRun, error) {
	if fileID == uuid.Nil {
		return nil, fmt.Errorf("missing file_id")
	}

	file, err := s.files.GetByID(dbc, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("file %s not found", fileID)
	}

	// A second chain racing an in-flight one would double-write entities,
	// so concurrent reprocess requests are rejected regardless of force.
	runnable, err := s.dispatcher.HasRunnableForFile(dbc, file.OwnerUserID, file.ID)
	if err != nil {
		return nil, err
	}
	if runnable {
		return nil, fmt.Errorf("file %s already has a runnable job", fileID)
	}

	if !force && (file.Status == types.FileStatusCompleted || file.Status == types.FileStatusProcessing) {
		return nil, fmt.Errorf("file %s is %s; pass force to reprocess", fileID, file.Status)
	}

	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	exists, err := s.blob.Exists(ctx, gcp.VariantOriginal, file.GUID, file.Extension)
	if err != nil {
		return nil, fmt.Errorf("check original blob: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("file %s has no retained original blob", fileID)
	}

	var job *types.JobRun
	runErr := s.inTx(dbc, func(txc dbctx.Context) error {
		res, err := s.cleanup.SoftDeleteAndUnindex(txc, file, types.DeletedReasonReprocess)
		if err != nil {
			return fmt.Errorf("soft delete entities: %w", err)
		}

		if err := s.files.UpdateFields(txc, file.ID, map[string]interface{}{
			"status": types.FileStatusPending,
			"error":  "",
		}); err != nil {
			return fmt.Errorf("reset file status: %w", err)
		}

		// previous_entities ride in the payload so the refs survive metadata
		// TTL expiry; the terminal stage hard-deletes them on success.
		meta := &redisclient.FileMeta{
			FileID:           file.ID,
			FileGUID:         file.GUID,
			FileType:         string(file.FileType),
			Extension:        file.Extension,
			Source:           "reprocess",
			Reprocessing:     true,
			PreviousEntities: res.Entities,
		}
		j, err := s.dispatcher.EnqueueFileChain(txc, file.OwnerUserID, JobTypeForFileType(file.FileType), meta)
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}

	if dbc.Tx == nil {
		if err := s.dispatcher.Dispatch(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
			return job, err
		}
	}

	s.log.Info("File reprocess dispatched", "file_id", file.ID, "job_id", job.ID, "force", force)
	return job, nil
}

func (s *reprocessService) inTx(dbc dbctx.Context, fn func(txc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: dbc.Ctx, Tx: tx})
	})
}
