package merchants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type MerchantRepo interface {
	Create(dbc dbctx.Context, m *types.Merchant) (*types.Merchant, error)
	ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Merchant, error)
	RecordMatch(dbc dbctx.Context, id uuid.UUID) error
}

type merchantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMerchantRepo(db *gorm.DB, baseLog *logger.Logger) MerchantRepo {
	return &merchantRepo{db: db, log: baseLog.With("repo", "MerchantRepo")}
}

func (r *merchantRepo) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (r *merchantRepo) Create(dbc dbctx.Context, m *types.Merchant) (*types.Merchant, error) {
	if err := r.handle(dbc).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (r *merchantRepo) ListByOwner(dbc dbctx.Context, ownerUserID uuid.UUID) ([]*types.Merchant, error) {
	var out []*types.Merchant
	if ownerUserID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(dbc).Where("owner_user_id = ?", ownerUserID).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *merchantRepo) RecordMatch(dbc dbctx.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return r.handle(dbc).
		Model(&types.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"match_count":     gorm.Expr("match_count + 1"),
			"last_matched_at": now,
			"updated_at":      now,
		}).Error
}
