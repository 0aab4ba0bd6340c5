package stages

import (
	"fmt"
	"time"

	"gorm.io/datatypes"

	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/extraction"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// ExtractDocumentFields creates the Document row for a generic document
// file. Classification and summary are refined later by AnalyzeDocument;
// this stage persists what one extraction pass yields.
func ExtractDocumentFields(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageExtractDocumentFields,
		Order:    Order[StageExtractDocumentFields],
		StartPct: 30,
		EndPct:   55,
		StartMsg: "Extracting document fields",
		DoneMsg:  "Document extracted",
		Timeout:  3 * time.Minute,
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
			parsed, err := d.loadParsed(jc)
			if err != nil {
				return nil, err
			}

			fields, raw, err := d.Extractor.ExtractDocument(jc.Ctx, *parsed)
			if err != nil {
				if extraction.IsSchemaViolation(err) {
					return nil, Permanent(err)
				}
				return nil, err
			}

			doc := &types.Document{
				FileID:        file.ID,
				OwnerUserID:   file.OwnerUserID,
				Title:         fields.Title,
				Summary:       fields.Summary,
				Category:      fields.Category,
				OCRConfidence: parsed.Confidence,
				RawFields:     datatypes.JSON(raw),
			}
			if ts, perr := time.Parse("2006-01-02", fields.IssuedAt); perr == nil {
				doc.IssuedAt = &ts
			}

			dbc := dbctx.Context{Ctx: jc.Ctx}
			created, err := d.Documents.Create(dbc, doc)
			if err != nil {
				return nil, fmt.Errorf("create document: %w", err)
			}
			if _, err := d.Links.Create(dbc, []*types.ExtractionLink{{
				FileID:      file.ID,
				OwnerUserID: file.OwnerUserID,
				EntityKind:  types.KindDocument,
				EntityID:    created.ID,
				Primary:     true,
				ExtractedAt: time.Now().UTC(),
			}}); err != nil {
				return nil, fmt.Errorf("create extraction link: %w", err)
			}

			if d.Search != nil {
				if err := d.Search.Index(jc.Ctx, types.EntityRef{Kind: types.KindDocument, ID: created.ID}, file.OwnerUserID); err != nil {
					d.Log.Warn("Index document failed", "document_id", created.ID, "error", err)
				}
			}
			if err := d.Metadata.Put(jc.Ctx, jc.Job.ID, redisclient.SectionPipeline, redisclient.PipelineMeta{
				EntityKind: types.KindDocument,
				EntityID:   created.ID,
			}); err != nil {
				d.Log.Warn("Stash pipeline metadata failed", "job_id", jc.Job.ID, "error", err)
			}

			return map[string]any{
				"entity_kind": string(types.KindDocument),
				"entity_id":   created.ID.String(),
				"title":       fields.Title,
			}, nil
		},
	}
}
