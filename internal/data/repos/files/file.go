package files

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type FileRepo interface {
	Create(dbc dbctx.Context, files []*types.File) ([]*types.File, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error)
	GetByGUID(dbc dbctx.Context, guid string) (*types.File, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	SetStatus(dbc dbctx.Context, id uuid.UUID, status types.FileStatus, errMsg string) error
	FindDuplicate(dbc dbctx.Context, ownerUserID uuid.UUID, contentHash string) (*types.File, error)
	ListMissingContentHash(dbc dbctx.Context, limit int) ([]*types.File, error)
	SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) Create(dbc dbctx.Context, files []*types.File) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(files) == 0 {
		return []*types.File{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var f types.File
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) GetByGUID(dbc dbctx.Context, guid string) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if guid == "" {
		return nil, nil
	}
	var f types.File
	err := transaction.WithContext(dbc.Ctx).Where("guid = ?", guid).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.File{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *fileRepo) SetStatus(dbc dbctx.Context, id uuid.UUID, status types.FileStatus, errMsg string) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{
		"status": status,
		"error":  errMsg,
	})
}

// FindDuplicate returns the owner's file carrying the same content hash,
// but only when that file still counts for dedup purposes: either its
// pipeline has not completed yet, or it is completed and still linked to at
// least one live structured entity. A completed file whose extraction was
// deleted is invisible here, so re-uploading its bytes is accepted.
func (r *fileRepo) FindDuplicate(dbc dbctx.Context, ownerUserID uuid.UUID, contentHash string) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || contentHash == "" {
		return nil, nil
	}
	var f types.File
	err := transaction.WithContext(dbc.Ctx).
		Where("owner_user_id = ? AND content_hash = ?", ownerUserID, contentHash).
		Where(`status <> ? OR EXISTS (
			SELECT 1 FROM extraction_link el
			WHERE el.file_id = file.id AND el.deleted_at IS NULL
		)`, types.FileStatusCompleted).
		Order("created_at ASC").
		First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepo) ListMissingContentHash(dbc dbctx.Context, limit int) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	q := transaction.WithContext(dbc.Ctx).
		Where("content_hash = '' OR content_hash IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) SoftDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.File{}).Error
}
