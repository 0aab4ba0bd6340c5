package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/domain/entities"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// tableOps is the uniform lifecycle surface over one entity table. The
// cleanup services iterate kinds through the registry instead of naming
// concrete models; only the purge ordering (entities.ChildKinds then
// entities.ParentKinds then the junction) is fixed.
type tableOps interface {
	Kind() types.EntityKind
	ListIDsBy(dbc dbctx.Context, column string, values []uuid.UUID) ([]uuid.UUID, error)
	PluckString(dbc dbctx.Context, id uuid.UUID, column string) (string, error)
	SoftDelete(dbc dbctx.Context, ids []uuid.UUID, reason string) error
	HardDelete(dbc dbctx.Context, ids []uuid.UUID, reason string) (int64, error)
}

type table[T any] struct {
	db   *gorm.DB
	kind types.EntityKind
}

func (t *table[T]) Kind() types.EntityKind { return t.kind }

func (t *table[T]) handle(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = t.db
	}
	return transaction.WithContext(dbc.Ctx)
}

func (t *table[T]) ListIDsBy(dbc dbctx.Context, column string, values []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(values) == 0 {
		return ids, nil
	}
	err := t.handle(dbc).
		Model(new(T)).
		Where(column+" IN ?", values).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *table[T]) PluckString(dbc dbctx.Context, id uuid.UUID, column string) (string, error) {
	var values []string
	err := t.handle(dbc).
		Model(new(T)).
		Where("id = ?", id).
		Limit(1).
		Pluck(column, &values).Error
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// SoftDelete stamps the reason and the deletion timestamp in one write so a
// later hard delete can filter to rows it is responsible for.
func (t *table[T]) SoftDelete(dbc dbctx.Context, ids []uuid.UUID, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now()
	return t.handle(dbc).
		Model(new(T)).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"deleted_reason": reason,
			"deleted_at":     now,
			"updated_at":     now,
		}).Error
}

func (t *table[T]) HardDelete(dbc dbctx.Context, ids []uuid.UUID, reason string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := t.handle(dbc).
		Unscoped().
		Where("id IN ? AND deleted_reason = ?", ids, reason).
		Delete(new(T))
	return res.RowsAffected, res.Error
}

// ChildSpec binds a child kind to the foreign-key column pointing at its
// parent table.
type ChildSpec struct {
	Kind         types.EntityKind
	ParentColumn string
}

// ParentSpec is one registry entry: a parent entity kind plus the child
// tables that die with it.
type ParentSpec struct {
	Kind     types.EntityKind
	Children []ChildSpec
}

type Registry struct {
	log     *logger.Logger
	parents []ParentSpec
	ops     map[types.EntityKind]tableOps
}

func NewRegistry(db *gorm.DB, baseLog *logger.Logger) *Registry {
	r := &Registry{
		log: baseLog.With("repo", "EntityRegistry"),
		parents: []ParentSpec{
			{Kind: entities.KindReceipt, Children: []ChildSpec{{Kind: entities.KindLineItem, ParentColumn: "receipt_id"}}},
			{Kind: entities.KindDocument},
			{Kind: entities.KindInvoice, Children: []ChildSpec{{Kind: entities.KindInvoiceLineItem, ParentColumn: "invoice_id"}}},
			{Kind: entities.KindContract},
			{Kind: entities.KindVoucher},
			{Kind: entities.KindWarranty},
			{Kind: entities.KindBankStatement, Children: []ChildSpec{{Kind: entities.KindBankTransaction, ParentColumn: "bank_statement_id"}}},
			{Kind: entities.KindReturnPolicy},
		},
		ops: map[types.EntityKind]tableOps{
			entities.KindReceipt:         &table[types.Receipt]{db: db, kind: entities.KindReceipt},
			entities.KindLineItem:        &table[types.LineItem]{db: db, kind: entities.KindLineItem},
			entities.KindDocument:        &table[types.Document]{db: db, kind: entities.KindDocument},
			entities.KindInvoice:         &table[types.Invoice]{db: db, kind: entities.KindInvoice},
			entities.KindInvoiceLineItem: &table[types.InvoiceLineItem]{db: db, kind: entities.KindInvoiceLineItem},
			entities.KindContract:        &table[types.Contract]{db: db, kind: entities.KindContract},
			entities.KindVoucher:         &table[types.Voucher]{db: db, kind: entities.KindVoucher},
			entities.KindWarranty:        &table[types.Warranty]{db: db, kind: entities.KindWarranty},
			entities.KindBankStatement:   &table[types.BankStatement]{db: db, kind: entities.KindBankStatement},
			entities.KindBankTransaction: &table[types.BankTransaction]{db: db, kind: entities.KindBankTransaction},
			entities.KindReturnPolicy:    &table[types.ReturnPolicy]{db: db, kind: entities.KindReturnPolicy},
			entities.KindExtractionLink:  &table[types.ExtractionLink]{db: db, kind: entities.KindExtractionLink},
		},
	}
	return r
}

func (r *Registry) Parents() []ParentSpec { return r.parents }

func (r *Registry) ops4(kind types.EntityKind) (tableOps, error) {
	op, ok := r.ops[kind]
	if !ok {
		return nil, fmt.Errorf("no entity table registered for kind %q", kind)
	}
	return op, nil
}

// ListIDsByFileID queries a parent table directly by owning-file id, not
// through any cached relationship, so accidental duplicates from prior bugs
// are caught too.
func (r *Registry) ListIDsByFileID(dbc dbctx.Context, kind types.EntityKind, fileID uuid.UUID) ([]uuid.UUID, error) {
	op, err := r.ops4(kind)
	if err != nil {
		return nil, err
	}
	return op.ListIDsBy(dbc, "file_id", []uuid.UUID{fileID})
}

func (r *Registry) ListChildIDs(dbc dbctx.Context, child ChildSpec, parentIDs []uuid.UUID) ([]uuid.UUID, error) {
	op, err := r.ops4(child.Kind)
	if err != nil {
		return nil, err
	}
	return op.ListIDsBy(dbc, child.ParentColumn, parentIDs)
}

// titleColumns maps each parent kind to the column that best labels one row
// for humans. Kinds without a natural label resolve to "".
var titleColumns = map[types.EntityKind]string{
	entities.KindReceipt:       "merchant_name",
	entities.KindDocument:      "title",
	entities.KindInvoice:       "vendor_name",
	entities.KindContract:      "title",
	entities.KindVoucher:       "code",
	entities.KindWarranty:      "product_name",
	entities.KindBankStatement: "account_iban",
	entities.KindReturnPolicy:  "vendor_name",
}

// TitleOf returns the display label of one entity, or "" when the kind has
// no label column or the row is gone.
func (r *Registry) TitleOf(dbc dbctx.Context, kind types.EntityKind, id uuid.UUID) (string, error) {
	column, ok := titleColumns[kind]
	if !ok {
		return "", nil
	}
	op, err := r.ops4(kind)
	if err != nil {
		return "", err
	}
	return op.PluckString(dbc, id, column)
}

func (r *Registry) SoftDelete(dbc dbctx.Context, kind types.EntityKind, ids []uuid.UUID, reason string) error {
	op, err := r.ops4(kind)
	if err != nil {
		return err
	}
	return op.SoftDelete(dbc, ids, reason)
}

func (r *Registry) HardDelete(dbc dbctx.Context, kind types.EntityKind, ids []uuid.UUID, reason string) (int64, error) {
	op, err := r.ops4(kind)
	if err != nil {
		return 0, err
	}
	return op.HardDelete(dbc, ids, reason)
}
