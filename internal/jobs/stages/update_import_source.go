package stages

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// UpdateImportSourceStatus reports this file's successful outcome back to
// the ImportSource it came from. Present only on chains dispatched from a
// bulk import.
func UpdateImportSourceStatus(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageUpdateImportSource,
		Order:    Order[StageUpdateImportSource],
		StartPct: 95,
		EndPct:   100,
		StartMsg: "Updating import status",
		DoneMsg:  "Import status updated",
		Retry:    orchestrator.RetryPolicy{MaxAttempts: 3, Retryable: Retryable},
		Skip: func(jc *jobrt.Context, st *orchestrator.ChainState) (bool, error) {
			meta, err := d.loadFileMeta(jc)
			if err != nil {
				return false, err
			}
			return meta.ImportID == nil || *meta.ImportID == uuid.Nil, nil
		},
		Run: func(jc *jobrt.Context, st *orchestrator.ChainState) (map[string]any, error) {
			meta, err := d.loadFileMeta(jc)
			if err != nil {
				return nil, err
			}
			src, err := d.Imports.RecordFileOutcome(dbctx.Context{Ctx: jc.Ctx}, *meta.ImportID, false)
			if err != nil {
				return nil, fmt.Errorf("record import outcome: %w", err)
			}
			return map[string]any{
				"import_id":     meta.ImportID.String(),
				"import_status": string(src.Status),
			}, nil
		},
	}
}
