package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

type fakeCleanupService struct {
	result  *CleanupResult
	reasons []string
	purged  [][]types.EntityRef
}

func (f *fakeCleanupService) SoftDeleteAndUnindex(_ dbctx.Context, _ *types.File, reason string) (*CleanupResult, error) {
	f.reasons = append(f.reasons, reason)
	if f.result != nil {
		return f.result, nil
	}
	return &CleanupResult{}, nil
}

func (f *fakeCleanupService) HardDelete(_ dbctx.Context, refs []types.EntityRef, _ string) error {
	f.purged = append(f.purged, refs)
	return nil
}

func seedReprocessFile(files *fakeFileRepo, owner uuid.UUID, status types.FileStatus) *types.File {
	file := &types.File{
		ID:          uuid.New(),
		GUID:        "g-reproc",
		OwnerUserID: owner,
		FileType:    types.FileTypeReceipt,
		Status:      status,
		Extension:   "pdf",
		ContentHash: "cafe",
	}
	files.rows[file.ID] = file
	return file
}

func TestReprocessRejectedWhileChainRunnable(t *testing.T) {
	files := newFakeFileRepo()
	file := seedReprocessFile(files, uuid.New(), types.FileStatusFailed)
	blob := &fakeBlobStore{hasBlob: true}
	cleanup := &fakeCleanupService{}
	dispatcher := &fakeChainDispatcher{runnable: true}
	svc := NewReprocessService(nil, testutil.Logger(t), files, blob, cleanup, dispatcher)

	// force does not override the guard: two live chains would double-write.
	for _, force := range []bool{false, true} {
		_, err := svc.Reprocess(dbctx.Context{Ctx: context.Background()}, file.ID, force)
		if err == nil || !strings.Contains(err.Error(), "runnable") {
			t.Fatalf("force=%v: expected runnable-chain rejection, got %v", force, err)
		}
	}
	if len(cleanup.reasons) != 0 || len(dispatcher.enqueued) != 0 {
		t.Fatalf("rejected reprocess touched state: cleanup=%v enqueued=%d", cleanup.reasons, len(dispatcher.enqueued))
	}
}

func TestReprocessCompletedRequiresForce(t *testing.T) {
	files := newFakeFileRepo()
	file := seedReprocessFile(files, uuid.New(), types.FileStatusCompleted)
	blob := &fakeBlobStore{hasBlob: true}
	svc := NewReprocessService(nil, testutil.Logger(t), files, blob, &fakeCleanupService{}, &fakeChainDispatcher{})

	_, err := svc.Reprocess(dbctx.Context{Ctx: context.Background()}, file.ID, false)
	if err == nil || !strings.Contains(err.Error(), "force") {
		t.Fatalf("expected force requirement, got %v", err)
	}
}

func TestReprocessRequiresRetainedBlob(t *testing.T) {
	files := newFakeFileRepo()
	file := seedReprocessFile(files, uuid.New(), types.FileStatusFailed)
	blob := &fakeBlobStore{hasBlob: false}
	svc := NewReprocessService(nil, testutil.Logger(t), files, blob, &fakeCleanupService{}, &fakeChainDispatcher{})

	_, err := svc.Reprocess(dbctx.Context{Ctx: context.Background()}, file.ID, false)
	if err == nil || !strings.Contains(err.Error(), "original blob") {
		t.Fatalf("expected missing-blob rejection, got %v", err)
	}
}

func TestReprocessStashesPreviousEntities(t *testing.T) {
	owner := uuid.New()
	files := newFakeFileRepo()
	file := seedReprocessFile(files, owner, types.FileStatusCompleted)
	blob := &fakeBlobStore{hasBlob: true}
	refs := []types.EntityRef{
		{Kind: types.KindReceipt, ID: uuid.New()},
		{Kind: types.KindLineItem, ID: uuid.New()},
	}
	cleanup := &fakeCleanupService{result: &CleanupResult{Entities: refs, Count: len(refs)}}
	dispatcher := &fakeChainDispatcher{}
	svc := NewReprocessService(nil, testutil.Logger(t), files, blob, cleanup, dispatcher)

	// Caller-owned transaction marker; the fakes never touch it.
	dbc := dbctx.Context{Ctx: context.Background(), Tx: &gorm.DB{}}
	job, err := svc.Reprocess(dbc, file.ID, true)
	if err != nil {
		t.Fatalf("Reprocess: %v", err)
	}
	if job == nil || job.JobType != "receipt_process" {
		t.Fatalf("job: %+v", job)
	}
	if len(cleanup.reasons) != 1 || cleanup.reasons[0] != types.DeletedReasonReprocess {
		t.Fatalf("cleanup reasons: %v", cleanup.reasons)
	}
	if updates := files.updates[file.ID]; updates["status"] != types.FileStatusPending {
		t.Fatalf("file not reset to pending: %v", updates)
	}
	meta := dispatcher.enqueued[0]
	if !meta.Reprocessing || len(meta.PreviousEntities) != 2 || meta.Source != "reprocess" {
		t.Fatalf("chain payload: %+v", meta)
	}
	// Soft-deleted entities stay recoverable until the new chain succeeds.
	if len(cleanup.purged) != 0 {
		t.Fatalf("previous entities purged at dispatch time")
	}
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("dispatched before the outer transaction committed")
	}
}
