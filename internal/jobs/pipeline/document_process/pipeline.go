package document_process

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/jobs/stages"
)

// Chain builds the strict document stage list. Optional stages are present
// only when the dispatch payload carries their inputs.
func Chain(d stages.Deps, includeTags, includeImport bool) []orchestrator.Stage {
	chain := []orchestrator.Stage{
		stages.Convert(d),
		stages.ExtractDocumentFields(d),
		stages.AnalyzeDocument(d),
	}
	if includeTags {
		chain = append(chain, stages.ApplyTags(d, stages.StageExtractDocumentFields))
	}
	chain = append(chain, stages.DeleteWorkingFiles(d))
	if includeImport {
		chain = append(chain, stages.UpdateImportSourceStatus(d))
	}
	return chain
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	if p == nil || p.engine == nil || p.deps.Files == nil || p.deps.Documents == nil || p.deps.Links == nil || p.deps.Blob == nil || p.deps.Analyzer == nil || p.deps.Extractor == nil || p.deps.Metadata == nil || p.deps.Cleanup == nil {
		jc.Fail("validate", fmt.Errorf("document_process: pipeline not configured"))
		return nil
	}
	fileID, ok := jc.PayloadUUID("file_id")
	if !ok || fileID == uuid.Nil {
		jc.Fail("validate", fmt.Errorf("missing file_id"))
		return nil
	}

	includeTags := hasTagIDs(jc)
	importID, hasImport := jc.PayloadUUID("import_id")
	chain := Chain(p.deps, includeTags, hasImport && importID != uuid.Nil)

	err := p.engine.Run(jc, chain, map[string]any{
		"file_id": fileID.String(),
	})
	stages.FinalizeFailure(p.deps, jc)
	return err
}

func hasTagIDs(jc *jobrt.Context) bool {
	raw, ok := jc.Payload()["inherited_tag_ids"].([]any)
	return ok && len(raw) > 0
}
