package entities

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type ReceiptRepo interface {
	CreateWithLineItems(dbc dbctx.Context, receipt *types.Receipt, items []*types.LineItem) (*types.Receipt, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type receiptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReceiptRepo(db *gorm.DB, baseLog *logger.Logger) ReceiptRepo {
	return &receiptRepo{db: db, log: baseLog.With("repo", "ReceiptRepo")}
}

func (r *receiptRepo) CreateWithLineItems(dbc dbctx.Context, receipt *types.Receipt, items []*types.LineItem) (*types.Receipt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if receipt == nil {
		return nil, errors.New("nil receipt")
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(receipt).Error; err != nil {
			return err
		}
		for _, item := range items {
			item.ReceiptID = receipt.ID
			item.OwnerUserID = receipt.OwnerUserID
		}
		if len(items) > 0 {
			if err := txx.Create(&items).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (r *receiptRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Receipt, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var rec types.Receipt
	err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *receiptRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Receipt{}).
		Where("id = ?", id).
		Updates(updates).Error
}
