package stages

import (
	"fmt"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

/*
DeleteWorkingFiles is the terminal cleanup stage of a successful chain:
	- for reprocessing runs, hard deletes the previously soft-deleted
	  entities stashed at dispatch time (the restore window closes here,
	  not before),
	- removes the processed/preview scratch blobs (original and archive
	  variants are retained),
	- forgets the job metadata,
	- flips the File to completed.
Blob and metadata cleanup are best-effort; entity purge failures are
surfaced so the stage retries.
*/
func DeleteWorkingFiles(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageDeleteWorkingFiles,
		Order:    Order[StageDeleteWorkingFiles],
		StartPct: 80,
		EndPct:   95,
		StartMsg: "Cleaning up",
		DoneMsg:  "Cleanup complete",
		Retry:    orchestrator.RetryPolicy{MaxAttempts: 3, Retryable: Retryable},
		Run: func(jc *jobrt.Context, st *orchestrator.ChainState) (map[string]any, error) {
			meta, err := d.loadFileMeta(jc)
			if err != nil {
				return nil, err
			}
			file, err := d.loadFile(jc, meta)
			if err != nil {
				return nil, err
			}
			dbc := dbctx.Context{Ctx: jc.Ctx}

			purged := 0
			if meta.Reprocessing && len(meta.PreviousEntities) > 0 {
				if err := d.Cleanup.HardDelete(dbc, meta.PreviousEntities, types.DeletedReasonReprocess); err != nil {
					return nil, fmt.Errorf("purge previous entities: %w", err)
				}
				purged = len(meta.PreviousEntities)
			}

			for _, variant := range []gcp.Variant{gcp.VariantProcessed, gcp.VariantPreview} {
				if err := d.Blob.Delete(jc.Ctx, variant, file.GUID, file.Extension); err != nil {
					d.Log.Warn("Scratch blob delete failed", "variant", variant, "guid", file.GUID, "error", err)
				}
			}
			if err := d.Metadata.Forget(jc.Ctx, jc.Job.ID); err != nil {
				d.Log.Warn("Forget job metadata failed", "job_id", jc.Job.ID, "error", err)
			}

			if err := d.Files.UpdateFields(dbc, file.ID, map[string]interface{}{
				"status":         types.FileStatusCompleted,
				"error":          "",
				"processed_path": "",
				"preview_path":   "",
			}); err != nil {
				return nil, fmt.Errorf("mark file completed: %w", err)
			}
			return map[string]any{"purged_entities": purged}, nil
		},
	}
}
