package entities

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

func TestRegistryLifecycle(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	reg := NewRegistry(db, testutil.Logger(t))

	owner := uuid.New()
	file := testutil.SeedFile(t, ctx, tx, owner, "cafe", types.FileStatusCompleted)
	receipt := testutil.SeedReceipt(t, ctx, tx, file.ID, owner)
	item1 := testutil.SeedLineItem(t, ctx, tx, receipt.ID, owner, 0)
	item2 := testutil.SeedLineItem(t, ctx, tx, receipt.ID, owner, 1)

	parentIDs, err := reg.ListIDsByFileID(dbc, types.KindReceipt, file.ID)
	if err != nil {
		t.Fatalf("ListIDsByFileID: %v", err)
	}
	if len(parentIDs) != 1 || parentIDs[0] != receipt.ID {
		t.Fatalf("ListIDsByFileID: got %v", parentIDs)
	}

	childSpec := ChildSpec{Kind: types.KindLineItem, ParentColumn: "receipt_id"}
	childIDs, err := reg.ListChildIDs(dbc, childSpec, parentIDs)
	if err != nil {
		t.Fatalf("ListChildIDs: %v", err)
	}
	if len(childIDs) != 2 {
		t.Fatalf("ListChildIDs: expected 2, got %v", childIDs)
	}

	// Soft delete children first, then the parent, stamping the reason.
	if err := reg.SoftDelete(dbc, types.KindLineItem, childIDs, types.DeletedReasonReprocess); err != nil {
		t.Fatalf("SoftDelete children: %v", err)
	}
	if err := reg.SoftDelete(dbc, types.KindReceipt, parentIDs, types.DeletedReasonReprocess); err != nil {
		t.Fatalf("SoftDelete parent: %v", err)
	}

	var liveReceipts int64
	if err := tx.WithContext(ctx).Model(&types.Receipt{}).Where("file_id = ?", file.ID).Count(&liveReceipts).Error; err != nil {
		t.Fatalf("count live receipts: %v", err)
	}
	if liveReceipts != 0 {
		t.Fatalf("expected soft-deleted receipt to be invisible, got %d", liveReceipts)
	}

	var stamped types.Receipt
	if err := tx.WithContext(ctx).Unscoped().Where("id = ?", receipt.ID).First(&stamped).Error; err != nil {
		t.Fatalf("load stamped receipt: %v", err)
	}
	if stamped.DeletedReason != types.DeletedReasonReprocess || !stamped.DeletedAt.Valid {
		t.Fatalf("expected reason + timestamp, got %+v", stamped)
	}

	// Hard delete only touches rows carrying the same reason.
	n, err := reg.HardDelete(dbc, types.KindLineItem, childIDs, types.DeletedReasonUserDelete)
	if err != nil {
		t.Fatalf("HardDelete (wrong reason): %v", err)
	}
	if n != 0 {
		t.Fatalf("HardDelete (wrong reason): expected 0 rows, got %d", n)
	}

	n, err = reg.HardDelete(dbc, types.KindLineItem, childIDs, types.DeletedReasonReprocess)
	if err != nil {
		t.Fatalf("HardDelete children: %v", err)
	}
	if n != 2 {
		t.Fatalf("HardDelete children: expected 2 rows, got %d", n)
	}
	n, err = reg.HardDelete(dbc, types.KindReceipt, parentIDs, types.DeletedReasonReprocess)
	if err != nil || n != 1 {
		t.Fatalf("HardDelete parent: err=%v n=%d", err, n)
	}

	var remaining int64
	if err := tx.WithContext(ctx).Unscoped().Model(&types.LineItem{}).
		Where("id IN ?", []uuid.UUID{item1.ID, item2.ID}).Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected line items physically gone, got %d", remaining)
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	// Kind lookup fails before any query runs, so no database is needed.
	reg := NewRegistry(nil, testutil.Logger(t))

	dbc := dbctx.Context{Ctx: context.Background()}
	if _, err := reg.ListIDsByFileID(dbc, types.EntityKind("bogus"), uuid.New()); err == nil {
		t.Fatalf("expected error for unregistered kind")
	}
}

func TestRegistryPurgeOrderCoversAllKinds(t *testing.T) {
	reg := NewRegistry(nil, testutil.Logger(t))

	seen := map[types.EntityKind]bool{}
	for _, parent := range reg.Parents() {
		seen[parent.Kind] = true
		for _, child := range parent.Children {
			seen[child.Kind] = true
		}
	}
	for _, kind := range types.ParentKinds {
		if !seen[kind] {
			t.Fatalf("parent kind %q missing from registry", kind)
		}
	}
	for _, kind := range types.ChildKinds {
		if !seen[kind] {
			t.Fatalf("child kind %q missing from registry", kind)
		}
	}
}
