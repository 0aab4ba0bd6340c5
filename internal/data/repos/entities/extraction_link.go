package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type ExtractionLinkRepo interface {
	Create(dbc dbctx.Context, links []*types.ExtractionLink) ([]*types.ExtractionLink, error)
	ListByFileID(dbc dbctx.Context, fileID uuid.UUID) ([]*types.ExtractionLink, error)
	HasLiveByFileID(dbc dbctx.Context, fileID uuid.UUID) (bool, error)
	SoftDeleteByFileID(dbc dbctx.Context, fileID uuid.UUID, reason string) ([]uuid.UUID, error)
}

type extractionLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewExtractionLinkRepo(db *gorm.DB, baseLog *logger.Logger) ExtractionLinkRepo {
	return &extractionLinkRepo{db: db, log: baseLog.With("repo", "ExtractionLinkRepo")}
}

func (r *extractionLinkRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *extractionLinkRepo) Create(dbc dbctx.Context, links []*types.ExtractionLink) ([]*types.ExtractionLink, error) {
	if len(links) == 0 {
		return []*types.ExtractionLink{}, nil
	}
	if err := r.handle(dbc).Create(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

func (r *extractionLinkRepo) ListByFileID(dbc dbctx.Context, fileID uuid.UUID) ([]*types.ExtractionLink, error) {
	var out []*types.ExtractionLink
	if fileID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(dbc).Where("file_id = ?", fileID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *extractionLinkRepo) HasLiveByFileID(dbc dbctx.Context, fileID uuid.UUID) (bool, error) {
	if fileID == uuid.Nil {
		return false, nil
	}
	var count int64
	err := r.handle(dbc).
		Model(&types.ExtractionLink{}).
		Where("file_id = ?", fileID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *extractionLinkRepo) SoftDeleteByFileID(dbc dbctx.Context, fileID uuid.UUID, reason string) ([]uuid.UUID, error) {
	if fileID == uuid.Nil {
		return nil, nil
	}
	var ids []uuid.UUID
	err := r.handle(dbc).
		Model(&types.ExtractionLink{}).
		Where("file_id = ?", fileID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	now := time.Now()
	err = r.handle(dbc).
		Model(&types.ExtractionLink{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"deleted_reason": reason,
			"deleted_at":     now,
			"updated_at":     now,
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
