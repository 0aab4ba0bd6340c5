package imports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type ImportSourceRepo interface {
	Create(dbc dbctx.Context, src *types.ImportSource) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ImportSource, error)
	// RecordFileOutcome bumps the processed or failed counter for one file
	// and recomputes the aggregate status in the same statement set.
	RecordFileOutcome(dbc dbctx.Context, id uuid.UUID, failed bool) (*types.ImportSource, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, fields map[string]any) error
}

type importSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportSourceRepo(db *gorm.DB, baseLog *logger.Logger) ImportSourceRepo {
	return &importSourceRepo{db: db, log: baseLog.With("repo", "ImportSourceRepo")}
}

func (r *importSourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *importSourceRepo) Create(dbc dbctx.Context, src *types.ImportSource) error {
	return r.handle(dbc).Create(src).Error
}

func (r *importSourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ImportSource, error) {
	var out types.ImportSource
	if err := r.handle(dbc).Where("id = ?", id).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *importSourceRepo) RecordFileOutcome(dbc dbctx.Context, id uuid.UUID, failed bool) (*types.ImportSource, error) {
	h := r.handle(dbc)
	counter := "processed_files"
	if failed {
		counter = "failed_files"
	}
	now := time.Now().UTC()
	if err := h.Model(&types.ImportSource{}).
		Where("id = ?", id).
		Updates(map[string]any{
			counter:        gorm.Expr(counter+" + ?", 1),
			"last_file_at": now,
			"updated_at":   now,
		}).Error; err != nil {
		return nil, err
	}
	var src types.ImportSource
	if err := h.Where("id = ?", id).First(&src).Error; err != nil {
		return nil, err
	}
	status := deriveStatus(&src)
	if status != src.Status {
		src.Status = status
		if err := h.Model(&types.ImportSource{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": status, "updated_at": now}).Error; err != nil {
			return nil, err
		}
	}
	return &src, nil
}

func (r *importSourceRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	return r.handle(dbc).Model(&types.ImportSource{}).Where("id = ?", id).Updates(fields).Error
}

func deriveStatus(src *types.ImportSource) types.ImportStatus {
	done := src.ProcessedFiles + src.FailedFiles
	switch {
	case src.TotalFiles > 0 && done >= src.TotalFiles && src.FailedFiles == 0:
		return types.ImportStatusCompleted
	case src.TotalFiles > 0 && done >= src.TotalFiles && src.ProcessedFiles == 0:
		return types.ImportStatusFailed
	case src.TotalFiles > 0 && done >= src.TotalFiles:
		return types.ImportStatusPartial
	default:
		return src.Status
	}
}
