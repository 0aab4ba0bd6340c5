package files

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

func TestFileRepoCRUD(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewFileRepo(db, testutil.Logger(t))

	owner := uuid.New()
	f := &types.File{
		ID:          uuid.New(),
		GUID:        uuid.NewString(),
		OwnerUserID: owner,
		FileType:    types.FileTypeDocument,
		Status:      types.FileStatusPending,
		Extension:   "pdf",
		SizeBytes:   2048,
	}
	if _, err := repo.Create(dbc, []*types.File{f}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByID(dbc, f.ID)
	if err != nil || got == nil || got.GUID != f.GUID {
		t.Fatalf("GetByID: err=%v got=%+v", err, got)
	}
	got, err = repo.GetByGUID(dbc, f.GUID)
	if err != nil || got == nil || got.ID != f.ID {
		t.Fatalf("GetByGUID: err=%v got=%+v", err, got)
	}

	if err := repo.SetStatus(dbc, f.ID, types.FileStatusFailed, "conversion timed out"); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = repo.GetByID(dbc, f.ID)
	if got.Status != types.FileStatusFailed || got.Error != "conversion timed out" {
		t.Fatalf("SetStatus: got %+v", got)
	}

	if err := repo.SoftDeleteByIDs(dbc, []uuid.UUID{f.ID}); err != nil {
		t.Fatalf("SoftDeleteByIDs: %v", err)
	}
	got, err = repo.GetByID(dbc, f.ID)
	if err != nil || got != nil {
		t.Fatalf("GetByID after soft delete: err=%v got=%+v", err, got)
	}
}

func TestFileRepoFindDuplicate(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewFileRepo(db, testutil.Logger(t))

	owner := uuid.New()
	hash := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

	// In-flight file counts as a duplicate regardless of extraction links.
	pending := testutil.SeedFile(t, ctx, tx, owner, hash, types.FileStatusProcessing)
	dup, err := repo.FindDuplicate(dbc, owner, hash)
	if err != nil {
		t.Fatalf("FindDuplicate (in-flight): %v", err)
	}
	if dup == nil || dup.ID != pending.ID {
		t.Fatalf("FindDuplicate (in-flight): expected %v got %+v", pending.ID, dup)
	}

	// Other owners never see it.
	dup, err = repo.FindDuplicate(dbc, uuid.New(), hash)
	if err != nil || dup != nil {
		t.Fatalf("FindDuplicate (other owner): err=%v got=%+v", err, dup)
	}

	// Completed file with no live extraction link is an orphan and does not
	// block a re-upload of the same bytes.
	orphanHash := "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"
	testutil.SeedFile(t, ctx, tx, owner, orphanHash, types.FileStatusCompleted)
	dup, err = repo.FindDuplicate(dbc, owner, orphanHash)
	if err != nil || dup != nil {
		t.Fatalf("FindDuplicate (orphan): err=%v got=%+v", err, dup)
	}

	// Completed file whose extraction link is live still counts.
	linkedHash := "fcde2b2edba56bf408601fb721fe9b5c338d10ee429ea04fae5511b68fbf8fb9"
	linked := testutil.SeedFile(t, ctx, tx, owner, linkedHash, types.FileStatusCompleted)
	receipt := testutil.SeedReceipt(t, ctx, tx, linked.ID, owner)
	link := testutil.SeedExtractionLink(t, ctx, tx, linked.ID, owner, types.KindReceipt, receipt.ID)
	dup, err = repo.FindDuplicate(dbc, owner, linkedHash)
	if err != nil {
		t.Fatalf("FindDuplicate (linked): %v", err)
	}
	if dup == nil || dup.ID != linked.ID {
		t.Fatalf("FindDuplicate (linked): expected %v got %+v", linked.ID, dup)
	}

	// Soft-deleting the link turns the file into an orphan.
	if err := tx.WithContext(ctx).Model(&types.ExtractionLink{}).
		Where("id = ?", link.ID).
		Update("deleted_at", gorm.Expr("now()")).Error; err != nil {
		t.Fatalf("soft delete link: %v", err)
	}
	dup, err = repo.FindDuplicate(dbc, owner, linkedHash)
	if err != nil || dup != nil {
		t.Fatalf("FindDuplicate (unlinked): err=%v got=%+v", err, dup)
	}
}

func TestFileRepoListMissingContentHash(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewFileRepo(db, testutil.Logger(t))

	owner := uuid.New()
	testutil.SeedFile(t, ctx, tx, owner, "", types.FileStatusCompleted)
	testutil.SeedFile(t, ctx, tx, owner, "", types.FileStatusCompleted)
	testutil.SeedFile(t, ctx, tx, owner, "aaaa", types.FileStatusCompleted)

	rows, err := repo.ListMissingContentHash(dbc, 10)
	if err != nil {
		t.Fatalf("ListMissingContentHash: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("ListMissingContentHash: expected 2, got %d", len(rows))
	}
	for _, row := range rows {
		if row.ContentHash != "" {
			t.Fatalf("ListMissingContentHash: unexpected row %+v", row)
		}
	}
}
