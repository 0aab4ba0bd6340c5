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

// ExtractReceiptFields turns the parsed block graph into a Receipt row
// with line items and the extraction_link pointing at it.
func ExtractReceiptFields(d Deps) orchestrator.Stage {
	return orchestrator.Stage{
		Name:     StageExtractReceiptFields,
		Order:    Order[StageExtractReceiptFields],
		StartPct: 30,
		EndPct:   55,
		StartMsg: "Extracting receipt fields",
		DoneMsg:  "Receipt extracted",
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

			fields, raw, err := d.Extractor.ExtractReceipt(jc.Ctx, *parsed)
			if err != nil {
				// Schema violations never fix themselves on the same text.
				if extraction.IsSchemaViolation(err) {
					return nil, Permanent(err)
				}
				return nil, err
			}

			receipt := &types.Receipt{
				FileID:        file.ID,
				OwnerUserID:   file.OwnerUserID,
				MerchantName:  fields.MerchantName,
				TotalAmount:   extraction.Cents(fields.TotalAmount),
				TaxAmount:     extraction.Cents(fields.TaxAmount),
				Currency:      fields.Currency,
				OCRConfidence: parsed.Confidence,
				RawFields:     datatypes.JSON(raw),
			}
			if ts, perr := time.Parse("2006-01-02", fields.PurchaseDate); perr == nil {
				receipt.PurchaseDate = &ts
			}
			items := make([]*types.LineItem, 0, len(fields.LineItems))
			for i, li := range fields.LineItems {
				qty := li.Quantity
				if qty < 1 {
					qty = 1
				}
				items = append(items, &types.LineItem{
					OwnerUserID: file.OwnerUserID,
					Position:    i + 1,
					Description: li.Description,
					Quantity:    qty,
					UnitAmount:  extraction.Cents(li.UnitAmount),
					TotalAmount: extraction.Cents(li.TotalAmount),
				})
			}

			dbc := dbctx.Context{Ctx: jc.Ctx}
			created, err := d.Receipts.CreateWithLineItems(dbc, receipt, items)
			if err != nil {
				return nil, fmt.Errorf("create receipt: %w", err)
			}
			if _, err := d.Links.Create(dbc, []*types.ExtractionLink{{
				FileID:      file.ID,
				OwnerUserID: file.OwnerUserID,
				EntityKind:  types.KindReceipt,
				EntityID:    created.ID,
				Primary:     true,
				ExtractedAt: time.Now().UTC(),
			}}); err != nil {
				return nil, fmt.Errorf("create extraction link: %w", err)
			}

			if d.Search != nil {
				if err := d.Search.Index(jc.Ctx, types.EntityRef{Kind: types.KindReceipt, ID: created.ID}, file.OwnerUserID); err != nil {
					d.Log.Warn("Index receipt failed", "receipt_id", created.ID, "error", err)
				}
			}
			if err := d.Metadata.Put(jc.Ctx, jc.Job.ID, redisclient.SectionPipeline, redisclient.PipelineMeta{
				EntityKind: types.KindReceipt,
				EntityID:   created.ID,
			}); err != nil {
				d.Log.Warn("Stash pipeline metadata failed", "job_id", jc.Job.ID, "error", err)
			}

			return map[string]any{
				"entity_kind":   string(types.KindReceipt),
				"entity_id":     created.ID.String(),
				"merchant_name": fields.MerchantName,
				"total_amount":  receipt.TotalAmount,
				"line_items":    len(items),
			}, nil
		},
	}
}
