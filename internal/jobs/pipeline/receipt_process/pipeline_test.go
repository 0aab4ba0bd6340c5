package receipt_process

import (
	"testing"

	"github.com/papervault/papervault-backend/internal/jobs/stages"
)

func TestChainOrderFull(t *testing.T) {
	chain := Chain(stages.Deps{}, true, true)
	want := []string{
		stages.StageConvert,
		stages.StageExtractReceiptFields,
		stages.StageMatchMerchant,
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
		stages.StageExtractReceiptFields,
		stages.StageMatchMerchant,
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

func TestChainProgressMonotonic(t *testing.T) {
	chain := Chain(stages.Deps{}, true, true)
	last := 0
	for _, s := range chain {
		if s.EndPct < s.StartPct {
			t.Fatalf("stage %q: EndPct %d < StartPct %d", s.Name, s.EndPct, s.StartPct)
		}
		if s.EndPct < last {
			t.Fatalf("stage %q: EndPct %d regresses below %d", s.Name, s.EndPct, last)
		}
		last = s.EndPct
	}
	if last != 100 {
		t.Fatalf("final EndPct = %d, want 100", last)
	}
}
