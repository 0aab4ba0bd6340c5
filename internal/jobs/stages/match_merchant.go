package stages

import (
	"fmt"
	"time"

	"github.com/papervault/papervault-backend/internal/jobs/orchestrator"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

// MatchMerchant attaches the extracted receipt to a Merchant aggregate,
// matching fuzzily on normalized names or creating a new one. Receipts
// without a merchant name skip the stage.
func MatchMerchant(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageMatchMerchant,
		Order:    Order[StageMatchMerchant],
		StartPct: 55,
		EndPct:   70,
		StartMsg: "Matching merchant",
		DoneMsg:  "Merchant matched",
		Retry:    orchestrator.RetryPolicy{MaxAttempts: 3, Retryable: Retryable},
		Run: func(jc *jobrt.Context, st *orchestrator.ChainState) (map[string]any, error) {
			receiptID, ok := outputUUID(st, StageExtractReceiptFields, "entity_id")
			if !ok {
				return nil, Permanent(fmt.Errorf("no receipt recorded for this chain"))
			}
			dbc := dbctx.Context{Ctx: jc.Ctx}
			receipt, err := d.Receipts.GetByID(dbc, receiptID)
			if err != nil {
				return nil, fmt.Errorf("load receipt: %w", err)
			}
			if receipt == nil {
				return nil, Permanent(fmt.Errorf("receipt %s not found", receiptID))
			}
			if receipt.MerchantName == "" {
				return map[string]any{"matched": false, "reason": "no merchant name"}, nil
			}

			merchant, existed, err := d.Matcher.Match(dbc, receipt.OwnerUserID, receipt.MerchantName)
			if err != nil {
				return nil, fmt.Errorf("match merchant: %w", err)
			}
			if err := d.Receipts.UpdateFields(dbc, receipt.ID, map[string]interface{}{
				"merchant_id": merchant.ID,
				"updated_at":  time.Now(),
			}); err != nil {
				return nil, fmt.Errorf("attach merchant: %w", err)
			}
			return map[string]any{
				"matched":     existed,
				"merchant_id": merchant.ID.String(),
			}, nil
		},
	}
}
