package stages

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/clients/gcp"
	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	"github.com/papervault/papervault-backend/internal/data/repos/entities"
	"github.com/papervault/papervault-backend/internal/data/repos/files"
	importrepos "github.com/papervault/papervault-backend/internal/data/repos/imports"
	tagrepos "github.com/papervault/papervault-backend/internal/data/repos/tags"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/extraction"
	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
	"github.com/papervault/papervault-backend/internal/services"
)

// Stage names as they appear in job_run.stage and job_stage_history.
const (
	StageConvert               = "convert"
	StageExtractReceiptFields  = "extract_receipt_fields"
	StageExtractDocumentFields = "extract_document_fields"
	StageMatchMerchant         = "match_merchant"
	StageAnalyzeDocument       = "analyze_document"
	StageApplyTags             = "apply_tags"
	StageDeleteWorkingFiles    = "delete_working_files"
	StageUpdateImportSource    = "update_import_source_status"
)

// Order fixes the stage_order written into history rows, counting from the
// entry stage at 0. It is stable across chain variants: optional stages
// that are absent leave a gap rather than renumbering what follows.
var Order = map[string]int{
	StageConvert:               0,
	StageExtractReceiptFields:  1,
	StageExtractDocumentFields: 1,
	StageMatchMerchant:         2,
	StageAnalyzeDocument:       2,
	StageApplyTags:             3,
	StageDeleteWorkingFiles:    4,
	StageUpdateImportSource:    5,
}

// Deps bundles everything any stage can need. Pipelines pass the same
// value to every stage constructor.
type Deps struct {
	DB        *gorm.DB
	Log       *logger.Logger
	Files     files.FileRepo
	Receipts  entities.ReceiptRepo
	Documents entities.DocumentRepo
	Links     entities.ExtractionLinkRepo
	Tags      tagrepos.TagRepo
	Imports   importrepos.ImportSourceRepo
	Blob      gcp.BlobStore
	Analyzer  gcp.Analyzer
	Extractor *extraction.Extractor
	Metadata  redisclient.JobMetadataStore
	Matcher   services.MerchantMatcher
	Cleanup   services.EntityCleanupService
	Search    services.SearchIndex
}

// -------------------- error classification --------------------

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not worth retrying: bad input, missing
// records, schema violations. Everything else is treated as transient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retryable is the shared retry predicate for stage retry policies.
func Retryable(err error) bool { return !IsPermanent(err) }

// -------------------- shared metadata access --------------------

// loadFileMeta reads the file section of job metadata, falling back to the
// durable job payload when the Redis entry has expired.
func (d Deps) loadFileMeta(jc *jobrt.Context) (*redisclient.FileMeta, error) {
	var meta redisclient.FileMeta
	if d.Metadata != nil {
		ok, err := d.Metadata.Get(jc.Ctx, jc.Job.ID, redisclient.SectionFile, &meta)
		if err != nil {
			d.Log.Warn("Job metadata read failed, falling back to payload", "job_id", jc.Job.ID, "error", err)
		} else if ok {
			return &meta, nil
		}
	}
	return fileMetaFromPayload(jc)
}

func fileMetaFromPayload(jc *jobrt.Context) (*redisclient.FileMeta, error) {
	fileID, ok := jc.PayloadUUID("file_id")
	if !ok {
		return nil, Permanent(fmt.Errorf("missing file_id in payload"))
	}
	guid, _ := jc.PayloadString("file_guid")
	fileType, _ := jc.PayloadString("file_type")
	source, _ := jc.PayloadString("source")
	meta := &redisclient.FileMeta{
		FileID:       fileID,
		FileGUID:     guid,
		FileType:     fileType,
		Source:       source,
		Reprocessing: jc.PayloadBool("reprocessing"),
	}
	if ext, ok := jc.PayloadString("extension"); ok {
		meta.Extension = ext
	}
	if importID, ok := jc.PayloadUUID("import_id"); ok {
		meta.ImportID = &importID
	}
	if raw, ok := jc.Payload()["inherited_tag_ids"].([]any); ok {
		for _, v := range raw {
			if id, err := uuid.Parse(fmt.Sprint(v)); err == nil {
				meta.InheritedTagIDs = append(meta.InheritedTagIDs, id)
			}
		}
	}
	if raw, ok := jc.Payload()["previous_entities"].([]any); ok {
		for _, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			id, err := uuid.Parse(fmt.Sprint(m["id"]))
			if err != nil {
				continue
			}
			meta.PreviousEntities = append(meta.PreviousEntities, types.EntityRef{
				Kind: types.EntityKind(fmt.Sprint(m["kind"])),
				ID:   id,
			})
		}
	}
	return meta, nil
}

// loadFile resolves the File row for this job, failing permanently when it
// is gone: a deleted file cannot be processed on any retry.
func (d Deps) loadFile(jc *jobrt.Context, meta *redisclient.FileMeta) (*types.File, error) {
	file, err := d.Files.GetByID(dbctx.Context{Ctx: jc.Ctx}, meta.FileID)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	if file == nil {
		return nil, Permanent(fmt.Errorf("file %s not found", meta.FileID))
	}
	return file, nil
}

// loadParsed reads the OCR result the convert stage stashed in metadata.
func (d Deps) loadParsed(jc *jobrt.Context) (*blockgraph.Result, error) {
	var parsed blockgraph.Result
	ok, err := d.Metadata.Get(jc.Ctx, jc.Job.ID, redisclient.SectionExtract, &parsed)
	if err != nil {
		return nil, fmt.Errorf("read ocr result: %w", err)
	}
	if !ok {
		return nil, Permanent(fmt.Errorf("ocr result missing from job metadata"))
	}
	return &parsed, nil
}

// loadPipelineMeta reads the entity pointer written by the extraction
// stage, falling back to chain outputs.
func (d Deps) loadPipelineMeta(jc *jobrt.Context, st *orchestrator.ChainState, extractStage string) (*redisclient.PipelineMeta, error) {
	var meta redisclient.PipelineMeta
	if d.Metadata != nil {
		ok, err := d.Metadata.Get(jc.Ctx, jc.Job.ID, redisclient.SectionPipeline, &meta)
		if err == nil && ok && meta.EntityID != uuid.Nil {
			return &meta, nil
		}
	}
	kind, _ := st.Output(extractStage, "entity_kind")
	id, ok := outputUUID(st, extractStage, "entity_id")
	if !ok {
		return nil, Permanent(fmt.Errorf("no extracted entity recorded for this chain"))
	}
	return &redisclient.PipelineMeta{
		EntityKind: types.EntityKind(fmt.Sprint(kind)),
		EntityID:   id,
	}, nil
}

func outputUUID(st *orchestrator.ChainState, stage, key string) (uuid.UUID, bool) {
	v, ok := st.Output(stage, key)
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
