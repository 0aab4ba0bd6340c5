package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

func TestJobRunRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	ownerUserID := uuid.New()

	queued := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "file_process",
		EntityType:  "file",
		EntityID:    ptrUUID(uuid.New()),
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-3 * time.Hour),
		UpdatedAt:   now.Add(-3 * time.Hour),
	}
	failed := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "file_process",
		EntityType:  "file",
		EntityID:    ptrUUID(uuid.New()),
		Status:      types.JobStatusFailed,
		Stage:       "extract_receipt_fields",
		Attempts:    1,
		LastErrorAt: ptrTime(now.Add(-2 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-2 * time.Hour),
		UpdatedAt:   now.Add(-2 * time.Hour),
	}
	staleRunning := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "file_process",
		EntityType:  "file",
		EntityID:    ptrUUID(uuid.New()),
		Status:      types.JobStatusRunning,
		Stage:       "convert",
		Attempts:    1,
		HeartbeatAt: ptrTime(now.Add(-10 * time.Hour)),
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   now.Add(-1 * time.Hour),
		UpdatedAt:   now.Add(-1 * time.Hour),
	}

	created, err := repo.Create(dbc, []*types.JobRun{queued, failed, staleRunning})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("Create: expected 3, got %d", len(created))
	}

	if rows, err := repo.GetByIDs(dbc, []uuid.UUID{queued.ID, failed.ID, staleRunning.ID}); err != nil || len(rows) != 3 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}

	// ClaimNextRunnable walks the runnable set in created_at ASC order.
	claim1, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #1: %v", err)
	}
	if claim1 == nil || claim1.ID != queued.ID {
		t.Fatalf("ClaimNextRunnable #1: expected %v got %v", queued.ID, claim1)
	}

	claim2, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #2: %v", err)
	}
	if claim2 == nil || claim2.ID != failed.ID {
		t.Fatalf("ClaimNextRunnable #2: expected %v got %v", failed.ID, claim2)
	}

	// The returned struct reflects the claim itself: the attempt counter and
	// status the handler observes must match what was written.
	if claim2.Status != types.JobStatusRunning || claim2.Attempts != 2 {
		t.Fatalf("ClaimNextRunnable #2: stale claim struct: status=%s attempts=%d", claim2.Status, claim2.Attempts)
	}
	stored, err := repo.GetByID(dbc, failed.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetByID after claim: %v", err)
	}
	if stored.Attempts != claim2.Attempts || stored.Status != claim2.Status {
		t.Fatalf("claim struct diverged from row: row attempts=%d status=%s", stored.Attempts, stored.Status)
	}

	claim3, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #3: %v", err)
	}
	if claim3 == nil || claim3.ID != staleRunning.ID {
		t.Fatalf("ClaimNextRunnable #3: expected %v got %v", staleRunning.ID, claim3)
	}

	claim4, err := repo.ClaimNextRunnable(dbc, 3, 1*time.Hour, 1*time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #4: %v", err)
	}
	if claim4 != nil {
		t.Fatalf("ClaimNextRunnable #4: expected nil, got %v", claim4)
	}

	// Terminal guard: canceled jobs stay canceled.
	if err := repo.UpdateFields(dbc, queued.ID, map[string]interface{}{"status": types.JobStatusCanceled}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	changed, err := repo.UpdateFieldsUnlessStatus(dbc, queued.ID, []string{types.JobStatusCanceled}, map[string]interface{}{"status": types.JobStatusRunning})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if changed {
		t.Fatalf("UpdateFieldsUnlessStatus: expected canceled job to be untouched")
	}

	if err := repo.Heartbeat(dbc, staleRunning.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	// HasRunnableForEntity covers queued and running chains only.
	guardEntityID := uuid.New()
	runnable := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     "file_process",
		EntityType:  "file",
		EntityID:    &guardEntityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(dbc, []*types.JobRun{runnable}); err != nil {
		t.Fatalf("seed runnable: %v", err)
	}

	has, err := repo.HasRunnableForEntity(dbc, ownerUserID, "file", guardEntityID)
	if err != nil {
		t.Fatalf("HasRunnableForEntity: %v", err)
	}
	if !has {
		t.Fatalf("HasRunnableForEntity: expected true")
	}

	if err := repo.UpdateFields(dbc, runnable.ID, map[string]interface{}{"status": types.JobStatusSucceeded}); err != nil {
		t.Fatalf("UpdateFields (succeed): %v", err)
	}
	has, err = repo.HasRunnableForEntity(dbc, ownerUserID, "file", guardEntityID)
	if err != nil {
		t.Fatalf("HasRunnableForEntity (succeeded): %v", err)
	}
	if has {
		t.Fatalf("HasRunnableForEntity: expected false once the chain finished")
	}
}

func TestStageHistoryRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}
	repo := NewStageHistoryRepo(db, testutil.Logger(t))

	jobID := uuid.New()
	started := time.Now().UTC().Add(-time.Minute)
	finished := time.Now().UTC()

	rows := []*types.JobStageHistory{
		{JobID: jobID, StageOrder: 0, Attempt: 1, StageName: "convert", Status: types.StageHistorySucceeded, StartedAt: started, FinishedAt: &finished},
		{JobID: jobID, StageOrder: 1, Attempt: 1, StageName: "extract_receipt_fields", Status: types.StageHistoryFailed, Error: "timeout", StartedAt: started, FinishedAt: &finished},
		{JobID: jobID, StageOrder: 1, Attempt: 2, StageName: "extract_receipt_fields", Status: types.StageHistorySucceeded, StartedAt: started, FinishedAt: &finished},
	}
	for _, row := range rows {
		if err := repo.Append(dbc, row); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	// The (job_id, stage_order, attempt) key makes re-recording an attempt a
	// constraint violation rather than a silent overwrite. Savepoint keeps
	// the violation from aborting the surrounding test transaction.
	tx.SavePoint("dup")
	dup := &types.JobStageHistory{JobID: jobID, StageOrder: 1, Attempt: 2, StageName: "extract_receipt_fields", Status: types.StageHistorySucceeded, StartedAt: started}
	if err := repo.Append(dbc, dup); err == nil {
		t.Fatalf("Append: expected duplicate attempt to fail")
	}
	tx.RollbackTo("dup")

	listed, err := repo.ListByJobID(dbc, jobID)
	if err != nil {
		t.Fatalf("ListByJobID: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("ListByJobID: expected 3, got %d", len(listed))
	}
	if listed[0].StageName != "convert" || listed[1].Attempt != 1 || listed[2].Attempt != 2 {
		t.Fatalf("ListByJobID: wrong order: %+v", listed)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrUUID(u uuid.UUID) *uuid.UUID { return &u }
