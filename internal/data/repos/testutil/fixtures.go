package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/papervault/papervault-backend/internal/domain"
)

func SeedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, contentHash string, status types.FileStatus) *types.File {
	tb.Helper()
	f := &types.File{
		ID:           uuid.New(),
		GUID:         uuid.NewString(),
		OwnerUserID:  ownerUserID,
		FileType:     types.FileTypeReceipt,
		Status:       status,
		ContentHash:  contentHash,
		OriginalPath: "files/original/" + uuid.NewString() + ".pdf",
		Extension:    "pdf",
		SizeBytes:    1024,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed file: %v", err)
	}
	return f
}

func SeedReceipt(tb testing.TB, ctx context.Context, tx *gorm.DB, fileID, ownerUserID uuid.UUID) *types.Receipt {
	tb.Helper()
	r := &types.Receipt{
		ID:           uuid.New(),
		FileID:       fileID,
		OwnerUserID:  ownerUserID,
		MerchantName: "ACME",
		TotalAmount:  1999,
		Currency:     "EUR",
		RawFields:    datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed receipt: %v", err)
	}
	return r
}

func SeedLineItem(tb testing.TB, ctx context.Context, tx *gorm.DB, receiptID, ownerUserID uuid.UUID, position int) *types.LineItem {
	tb.Helper()
	li := &types.LineItem{
		ID:          uuid.New(),
		ReceiptID:   receiptID,
		OwnerUserID: ownerUserID,
		Position:    position,
		Description: "item",
		Quantity:    1,
		UnitAmount:  1999,
		TotalAmount: 1999,
	}
	if err := tx.WithContext(ctx).Create(li).Error; err != nil {
		tb.Fatalf("seed line item: %v", err)
	}
	return li
}

func SeedExtractionLink(tb testing.TB, ctx context.Context, tx *gorm.DB, fileID, ownerUserID uuid.UUID, kind types.EntityKind, entityID uuid.UUID) *types.ExtractionLink {
	tb.Helper()
	el := &types.ExtractionLink{
		ID:          uuid.New(),
		FileID:      fileID,
		OwnerUserID: ownerUserID,
		EntityKind:  kind,
		EntityID:    entityID,
		Primary:     true,
		ExtractedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(el).Error; err != nil {
		tb.Fatalf("seed extraction link: %v", err)
	}
	return el
}

func SeedJobRun(tb testing.TB, ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, entityID uuid.UUID, status string) *types.JobRun {
	tb.Helper()
	j := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "file_process",
		EntityType:  "file",
		EntityID:    PtrUUID(entityID),
		Status:      status,
		Stage:       "convert",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(j).Error; err != nil {
		tb.Fatalf("seed job run: %v", err)
	}
	return j
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
