package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/papervault/papervault-backend/internal/clients/openai"
	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// ReceiptFields is the structured result for a receipt, amounts in decimal
// currency units as returned by the model.
type ReceiptFields struct {
	MerchantName string            `json:"merchant_name"`
	TotalAmount  float64           `json:"total_amount"`
	TaxAmount    float64           `json:"tax_amount,omitempty"`
	Currency     string            `json:"currency,omitempty"`
	PurchaseDate string            `json:"purchase_date,omitempty"`
	LineItems    []ReceiptLineItem `json:"line_items,omitempty"`
}

type ReceiptLineItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity,omitempty"`
	UnitAmount  float64 `json:"unit_amount,omitempty"`
	TotalAmount float64 `json:"total_amount,omitempty"`
}

type DocumentFields struct {
	Title    string `json:"title"`
	Summary  string `json:"summary,omitempty"`
	Category string `json:"category,omitempty"`
	IssuedAt string `json:"issued_at,omitempty"`
}

// DocumentAnalysis is the enrichment pass over an already-extracted
// document: classification plus a short summary of the full text.
type DocumentAnalysis struct {
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// Cents converts a decimal currency amount to integer cents.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

type Extractor struct {
	log *logger.Logger
	llm openai.Client
}

func NewExtractor(llm openai.Client, baseLog *logger.Logger) *Extractor {
	return &Extractor{log: baseLog.With("component", "Extractor"), llm: llm}
}

const receiptSystemPrompt = `You extract structured data from OCR text of retail receipts.
Reply with a single JSON object with fields: merchant_name (string),
total_amount (number), tax_amount (number), currency (ISO 4217 string),
purchase_date (YYYY-MM-DD), line_items (array of {description, quantity,
unit_amount, total_amount}). Omit fields you cannot determine. Never invent
amounts that are not in the text.`

const documentSystemPrompt = `You extract structured data from OCR text of business documents.
Reply with a single JSON object with fields: title (string), summary (string,
max 3 sentences), category (one of: invoice, contract, voucher, warranty,
bank_statement, return_policy, other), issued_at (YYYY-MM-DD). Omit fields
you cannot determine.`

func (e *Extractor) ExtractReceipt(ctx context.Context, parsed blockgraph.Result) (*ReceiptFields, json.RawMessage, error) {
	raw, err := e.llm.ExtractJSON(ctx, receiptSystemPrompt, renderUserPrompt(parsed))
	if err != nil {
		return nil, nil, fmt.Errorf("receipt extraction: %w", err)
	}
	if err := validateAgainstSchema(receiptSchema, raw); err != nil {
		return nil, nil, fmt.Errorf("receipt extraction: %w", err)
	}
	var fields ReceiptFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, fmt.Errorf("receipt extraction: %w", err)
	}
	return &fields, raw, nil
}

func (e *Extractor) ExtractDocument(ctx context.Context, parsed blockgraph.Result) (*DocumentFields, json.RawMessage, error) {
	raw, err := e.llm.ExtractJSON(ctx, documentSystemPrompt, renderUserPrompt(parsed))
	if err != nil {
		return nil, nil, fmt.Errorf("document extraction: %w", err)
	}
	if err := validateAgainstSchema(documentSchema, raw); err != nil {
		return nil, nil, fmt.Errorf("document extraction: %w", err)
	}
	var fields DocumentFields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, fmt.Errorf("document extraction: %w", err)
	}
	return &fields, raw, nil
}

const analysisSystemPrompt = `You classify and summarize business documents from OCR text.
Reply with a single JSON object with fields: category (one of: invoice,
contract, voucher, warranty, bank_statement, return_policy, other) and
summary (string, max 3 sentences, plain language, no markup).`

func (e *Extractor) AnalyzeDocument(ctx context.Context, parsed blockgraph.Result) (*DocumentAnalysis, error) {
	raw, err := e.llm.ExtractJSON(ctx, analysisSystemPrompt, renderUserPrompt(parsed))
	if err != nil {
		return nil, fmt.Errorf("document analysis: %w", err)
	}
	if err := validateAgainstSchema(documentAnalysisSchema, raw); err != nil {
		return nil, fmt.Errorf("document analysis: %w", err)
	}
	var out DocumentAnalysis
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("document analysis: %w", err)
	}
	return &out, nil
}

// renderUserPrompt folds the parsed block graph into one prompt: linear
// text first, then resolved form pairs and reconstructed tables, which
// often carry the amounts OCR text garbles.
func renderUserPrompt(parsed blockgraph.Result) string {
	var sb strings.Builder
	sb.WriteString("OCR TEXT:\n")
	sb.WriteString(parsed.Text)

	if len(parsed.Forms) > 0 {
		sb.WriteString("\n\nFORM FIELDS:\n")
		for _, f := range parsed.Forms {
			fmt.Fprintf(&sb, "%s: %s\n", f.Key, f.Value)
		}
	}
	for ti, table := range parsed.Tables {
		fmt.Fprintf(&sb, "\nTABLE %d:\n", ti+1)
		sb.WriteString(renderTable(table))
	}
	return sb.String()
}

func renderTable(t blockgraph.Table) string {
	maxRow := -1
	maxCol := -1
	for r, cols := range t {
		if r > maxRow {
			maxRow = r
		}
		for c := range cols {
			if c > maxCol {
				maxCol = c
			}
		}
	}
	var sb strings.Builder
	for r := 0; r <= maxRow; r++ {
		cells := make([]string, 0, maxCol+1)
		for c := 0; c <= maxCol; c++ {
			cells = append(cells, t[r][c])
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}
