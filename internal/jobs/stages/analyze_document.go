package stages

import (
	"fmt"
	"time"

	"github.com/papervault/papervault-backend/internal/extraction"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// AnalyzeDocument runs the enrichment pass over an extracted Document:
// classification into the known categories plus a short summary.
func AnalyzeDocument(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageAnalyzeDocument,
		Order:    Order[StageAnalyzeDocument],
		StartPct: 55,
		EndPct:   70,
		StartMsg: "Analyzing document",
		DoneMsg:  "Document analyzed",
		Timeout:  3 * time.Minute,
		Retry:    orchestrator.RetryPolicy{MaxAttempts: 3, Retryable: Retryable},
		Run: func(jc *jobrt.Context, st *orchestrator.ChainState) (map[string]any, error) {
			docID, ok := outputUUID(st, StageExtractDocumentFields, "entity_id")
			if !ok {
				return nil, Permanent(fmt.Errorf("no document recorded for this chain"))
			}
			parsed, err := d.loadParsed(jc)
			if err != nil {
				return nil, err
			}

			analysis, err := d.Extractor.AnalyzeDocument(jc.Ctx, *parsed)
			if err != nil {
				if extraction.IsSchemaViolation(err) {
					return nil, Permanent(err)
				}
				return nil, err
			}

			dbc := dbctx.Context{Ctx: jc.Ctx}
			if err := d.Documents.UpdateFields(dbc, docID, map[string]interface{}{
				"category":   analysis.Category,
				"summary":    analysis.Summary,
				"updated_at": time.Now(),
			}); err != nil {
				return nil, fmt.Errorf("apply analysis: %w", err)
			}
			return map[string]any{"category": analysis.Category}, nil
		},
	}
}
