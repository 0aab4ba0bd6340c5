package jobs

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// StageHistoryRepo records one row per stage attempt. Rows are append-only;
// nothing ever updates or deletes them.
type StageHistoryRepo interface {
	Append(dbc dbctx.Context, row *types.JobStageHistory) error
	ListByJobID(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobStageHistory, error)
}

type stageHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStageHistoryRepo(db *gorm.DB, baseLog *logger.Logger) StageHistoryRepo {
	return &stageHistoryRepo{
		db:  db,
		log: baseLog.With("repo", "StageHistoryRepo"),
	}
}

func (r *stageHistoryRepo) Append(dbc dbctx.Context, row *types.JobStageHistory) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(row).Error
}

func (r *stageHistoryRepo) ListByJobID(dbc dbctx.Context, jobID uuid.UUID) ([]*types.JobStageHistory, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.JobStageHistory
	if jobID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("job_id = ?", jobID).
		Order("stage_order ASC, attempt ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
