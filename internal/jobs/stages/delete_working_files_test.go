package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/services"
)

type memMetadata struct {
	sections  map[string]json.RawMessage
	forgotten []uuid.UUID
}

func newMemMetadata() *memMetadata {
	return &memMetadata{sections: map[string]json.RawMessage{}}
}

func (m *memMetadata) key(jobID uuid.UUID, section string) string {
	return fmt.Sprintf("%s:%s", jobID, section)
}

func (m *memMetadata) Put(_ context.Context, jobID uuid.UUID, section string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.sections[m.key(jobID, section)] = b
	return nil
}

func (m *memMetadata) Get(_ context.Context, jobID uuid.UUID, section string, out any) (bool, error) {
	b, ok := m.sections[m.key(jobID, section)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, out)
}

func (m *memMetadata) Forget(_ context.Context, jobID uuid.UUID, _ ...string) error {
	m.forgotten = append(m.forgotten, jobID)
	return nil
}

func (m *memMetadata) Close() error { return nil }

type stageFileRepo struct {
	rows    map[uuid.UUID]*types.File
	updates map[uuid.UUID]map[string]interface{}
}

func newStageFileRepo() *stageFileRepo {
	return &stageFileRepo{rows: map[uuid.UUID]*types.File{}, updates: map[uuid.UUID]map[string]interface{}{}}
}

func (f *stageFileRepo) Create(_ dbctx.Context, files []*types.File) ([]*types.File, error) {
	for _, file := range files {
		f.rows[file.ID] = file
	}
	return files, nil
}

func (f *stageFileRepo) GetByID(_ dbctx.Context, id uuid.UUID) (*types.File, error) {
	return f.rows[id], nil
}

func (f *stageFileRepo) GetByGUID(_ dbctx.Context, _ string) (*types.File, error) { return nil, nil }

func (f *stageFileRepo) UpdateFields(_ dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.updates[id] = updates
	return nil
}

func (f *stageFileRepo) SetStatus(_ dbctx.Context, _ uuid.UUID, _ types.FileStatus, _ string) error {
	return nil
}

func (f *stageFileRepo) FindDuplicate(_ dbctx.Context, _ uuid.UUID, _ string) (*types.File, error) {
	return nil, nil
}

func (f *stageFileRepo) ListMissingContentHash(_ dbctx.Context, _ int) ([]*types.File, error) {
	return nil, nil
}

func (f *stageFileRepo) SoftDeleteByIDs(_ dbctx.Context, _ []uuid.UUID) error { return nil }

type stageBlobStore struct {
	deleted []string
}

func (f *stageBlobStore) Store(_ context.Context, _ gcp.Variant, _, _ string, _ io.Reader) (string, error) {
	return "", nil
}

func (f *stageBlobStore) Read(_ context.Context, _ gcp.Variant, _, _ string) ([]byte, error) {
	return nil, nil
}

func (f *stageBlobStore) Delete(_ context.Context, variant gcp.Variant, guid, ext string) error {
	f.deleted = append(f.deleted, gcp.VariantKey(variant, guid, ext))
	return nil
}

func (f *stageBlobStore) Exists(_ context.Context, _ gcp.Variant, _, _ string) (bool, error) {
	return true, nil
}

func (f *stageBlobStore) DeleteAllVariants(_ context.Context, _ string) error { return nil }

func (f *stageBlobStore) Close() error { return nil }

type stageCleanup struct {
	purged  [][]types.EntityRef
	reasons []string
}

func (f *stageCleanup) SoftDeleteAndUnindex(_ dbctx.Context, _ *types.File, _ string) (*services.CleanupResult, error) {
	return nil, nil
}

func (f *stageCleanup) HardDelete(_ dbctx.Context, refs []types.EntityRef, reason string) error {
	f.purged = append(f.purged, refs)
	f.reasons = append(f.reasons, reason)
	return nil
}

func TestDeleteWorkingFilesPurgesPreviousEntities(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	file := &types.File{
		ID:          uuid.New(),
		GUID:        "g-stage",
		OwnerUserID: owner,
		FileType:    types.FileTypeReceipt,
		Status:      types.FileStatusProcessing,
		Extension:   "pdf",
	}
	files := newStageFileRepo()
	files.rows[file.ID] = file

	refs := []types.EntityRef{
		{Kind: types.KindReceipt, ID: uuid.New()},
		{Kind: types.KindLineItem, ID: uuid.New()},
	}
	job := &types.JobRun{
		ID:      uuid.New(),
		Status:  types.JobStatusRunning,
		Payload: datatypes.JSON([]byte(`{}`)),
	}
	metadata := newMemMetadata()
	if err := metadata.Put(ctx, job.ID, redisclient.SectionFile, &redisclient.FileMeta{
		FileID:           file.ID,
		FileGUID:         file.GUID,
		FileType:         string(file.FileType),
		Extension:        file.Extension,
		Reprocessing:     true,
		PreviousEntities: refs,
	}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	blob := &stageBlobStore{}
	cleanup := &stageCleanup{}
	deps := Deps{
		Log:      testutil.Logger(t),
		Files:    files,
		Blob:     blob,
		Metadata: metadata,
		Cleanup:  cleanup,
	}

	jc := jobrt.NewContext(ctx, nil, job, nil, nil)
	stage := DeleteWorkingFiles(deps)
	out, err := stage.Run(jc, &orchestrator.ChainState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The restore window closes here: the stashed refs are purged with the
	// reason they were soft deleted under.
	if len(cleanup.purged) != 1 || len(cleanup.purged[0]) != 2 {
		t.Fatalf("purged: %v", cleanup.purged)
	}
	if cleanup.reasons[0] != types.DeletedReasonReprocess {
		t.Fatalf("purge reason = %q", cleanup.reasons[0])
	}
	if out["purged_entities"] != 2 {
		t.Errorf("purged_entities = %v", out["purged_entities"])
	}
	if updates := files.updates[file.ID]; updates["status"] != types.FileStatusCompleted {
		t.Errorf("file not completed: %v", updates)
	}
	if len(blob.deleted) != 2 {
		t.Errorf("scratch blobs deleted: %v", blob.deleted)
	}
	if len(metadata.forgotten) != 1 || metadata.forgotten[0] != job.ID {
		t.Errorf("metadata not forgotten: %v", metadata.forgotten)
	}
}

func TestDeleteWorkingFilesFirstRunPurgesNothing(t *testing.T) {
	ctx := context.Background()
	file := &types.File{
		ID:        uuid.New(),
		GUID:      "g-first",
		FileType:  types.FileTypeReceipt,
		Status:    types.FileStatusProcessing,
		Extension: "pdf",
	}
	files := newStageFileRepo()
	files.rows[file.ID] = file

	job := &types.JobRun{
		ID:      uuid.New(),
		Status:  types.JobStatusRunning,
		Payload: datatypes.JSON([]byte(fmt.Sprintf(`{"file_id":%q,"file_guid":"g-first","file_type":"receipt","extension":"pdf"}`, file.ID))),
	}

	cleanup := &stageCleanup{}
	deps := Deps{
		Log:      testutil.Logger(t),
		Files:    files,
		Blob:     &stageBlobStore{},
		Metadata: newMemMetadata(),
		Cleanup:  cleanup,
	}

	jc := jobrt.NewContext(ctx, nil, job, nil, nil)
	out, err := DeleteWorkingFiles(deps).Run(jc, &orchestrator.ChainState{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cleanup.purged) != 0 {
		t.Fatalf("first run purged entities: %v", cleanup.purged)
	}
	if out["purged_entities"] != 0 {
		t.Errorf("purged_entities = %v", out["purged_entities"])
	}
}
