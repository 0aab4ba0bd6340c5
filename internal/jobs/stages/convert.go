package stages

import (
	"fmt"
	"time"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// Convert runs OCR over the original blob and stashes the parsed block
// graph in job metadata for the extraction stages. It also flips the File
// to processing; the terminal stage flips it to completed.
func Convert(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageConvert,
		Order:    Order[StageConvert],
		StartPct: 5,
		EndPct:   30,
		StartMsg: "Running OCR",
		DoneMsg:  "OCR complete",
		Timeout:  5 * time.Minute,
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
			if err := d.Files.UpdateFields(dbc, file.ID, map[string]interface{}{
				"status": types.FileStatusProcessing,
				"error":  "",
			}); err != nil {
				return nil, fmt.Errorf("mark file processing: %w", err)
			}

			data, err := d.Blob.Read(jc.Ctx, gcp.VariantOriginal, file.GUID, file.Extension)
			if err != nil {
				return nil, fmt.Errorf("read original blob: %w", err)
			}
			mime := gcp.MimeForExtension(file.Extension)
			if mime == "" {
				return nil, Permanent(fmt.Errorf("unsupported extension %q", file.Extension))
			}
			if err := gcp.ValidateAnalyzeInput(data, mime); err != nil {
				return nil, Permanent(err)
			}

			blocks, err := d.Analyzer.Analyze(jc.Ctx, data, mime)
			if err != nil {
				return nil, fmt.Errorf("analyze: %w", err)
			}
			parsed := blockgraph.Parse(blocks)

			if err := d.Metadata.Put(jc.Ctx, jc.Job.ID, redisclient.SectionExtract, parsed); err != nil {
				return nil, fmt.Errorf("stash ocr result: %w", err)
			}
			return map[string]any{
				"blocks":     len(blocks),
				"pages":      len(parsed.Pages),
				"tables":     len(parsed.Tables),
				"forms":      len(parsed.Forms),
				"confidence": parsed.Confidence,
			}, nil
		},
	}
}
