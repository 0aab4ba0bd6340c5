package document_process

import (
	"testing"

	"github.com/papervault/papervault-backend/internal/jobs/stages"
)

func TestChainOrderFull(t *testing.T) {
	chain := Chain(stages.Deps{}, true, true)
	want := []string{
		stages.StageConvert,
		stages.StageExtractDocumentFields,
		stages.StageAnalyzeDocument,
		stages.StageApplyTags,
		stages.StageDeleteWorkingFiles,
		stages.StageUpdateImportSource,
	}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i, s := range chain {
		if s.Name != want[i] {
			t.Fatalf("chain[%d] = %q, want %q", i, s.Name, want[i])
		}
	}
}

func TestChainOrderMinimal(t *testing.T) {
	chain := Chain(stages.Deps{}, false, false)
	want := []string{
		stages.StageConvert,
		stages.StageExtractDocumentFields,
		stages.StageAnalyzeDocument,
		stages.StageDeleteWorkingFiles,
	}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i, s := range chain {
		if s.Name != want[i] {
			t.Fatalf("chain[%d] = %q, want %q", i, s.Name, want[i])
		}
	}
}
