package stages

import (
	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
)

// FinalizeFailure runs after the engine returns with the job terminally
// failed: it marks the File failed and reports the failure to the
// ImportSource. It fires only when the worker will not claim the job
// again, so import counters are bumped once per chain, not per attempt.
func FinalizeFailure(d Deps, jc *jobrt.Context) {
	if jc == nil || jc.Job == nil || jc.Job.Status != types.JobStatusFailed {
		return
	}
	maxAttempts := envutil.Int("WORKER_MAX_ATTEMPTS", 5)
	if jc.Job.Attempts < maxAttempts {
		return
	}
	meta, err := d.loadFileMeta(jc)
	if err != nil {
		d.Log.Warn("Failure finalize: file meta unavailable", "job_id", jc.Job.ID, "error", err)
		return
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	if err := d.Files.UpdateFields(dbc, meta.FileID, map[string]interface{}{
		"status": types.FileStatusFailed,
		"error":  jc.Job.Error,
	}); err != nil {
		d.Log.Warn("Failure finalize: mark file failed", "file_id", meta.FileID, "error", err)
	}
	if meta.ImportID != nil && *meta.ImportID != uuid.Nil {
		if _, err := d.Imports.RecordFileOutcome(dbc, *meta.ImportID, true); err != nil {
			d.Log.Warn("Failure finalize: record import outcome", "import_id", *meta.ImportID, "error", err)
		}
	}
	if err := d.Metadata.Forget(jc.Ctx, jc.Job.ID); err != nil {
		d.Log.Warn("Failure finalize: forget metadata", "job_id", jc.Job.ID, "error", err)
	}
}
