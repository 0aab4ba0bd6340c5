package extraction

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

type fakeLLM struct {
	response string
	err      error
	lastUser string
}

func (f *fakeLLM) ExtractJSON(_ context.Context, _, user string) (json.RawMessage, error) {
	f.lastUser = user
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(f.response), nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func TestCents(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{0, 0},
		{19.99, 1999},
		{0.1, 10},
		{2.5, 250},
		{1234.56, 123456},
	}
	for _, c := range cases {
		if got := Cents(c.in); got != c.want {
			t.Fatalf("Cents(%v): got %d want %d", c.in, got, c.want)
		}
	}
}

func TestExtractReceipt(t *testing.T) {
	llm := &fakeLLM{response: `{
		"merchant_name": "REWE",
		"total_amount": 23.45,
		"tax_amount": 3.74,
		"currency": "EUR",
		"purchase_date": "2024-06-01",
		"line_items": [
			{"description": "Milk", "quantity": 2, "unit_amount": 1.19, "total_amount": 2.38}
		]
	}`}
	ex := NewExtractor(llm, testLogger(t))

	fields, raw, err := ex.ExtractReceipt(context.Background(), blockgraph.Result{Text: "REWE ..."})
	if err != nil {
		t.Fatalf("ExtractReceipt: %v", err)
	}
	if fields.MerchantName != "REWE" || Cents(fields.TotalAmount) != 2345 {
		t.Fatalf("fields: %+v", fields)
	}
	if len(fields.LineItems) != 1 || fields.LineItems[0].Description != "Milk" {
		t.Fatalf("line items: %+v", fields.LineItems)
	}
	if len(raw) == 0 {
		t.Fatalf("raw response missing")
	}
}

func TestExtractReceiptRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing required":  `{"total_amount": 5.0}`,
		"negative amount":   `{"merchant_name": "X", "total_amount": -1}`,
		"bad currency":      `{"merchant_name": "X", "total_amount": 1, "currency": "euro"}`,
		"bad date":          `{"merchant_name": "X", "total_amount": 1, "purchase_date": "01.06.2024"}`,
		"unknown property":  `{"merchant_name": "X", "total_amount": 1, "surprise": true}`,
		"empty description": `{"merchant_name": "X", "total_amount": 1, "line_items": [{"description": ""}]}`,
	}
	for name, resp := range cases {
		ex := NewExtractor(&fakeLLM{response: resp}, testLogger(t))
		if _, _, err := ex.ExtractReceipt(context.Background(), blockgraph.Result{}); err == nil {
			t.Fatalf("%s: expected schema error", name)
		}
	}
}

func TestExtractDocument(t *testing.T) {
	llm := &fakeLLM{response: `{"title": "Car Insurance Contract", "category": "contract", "issued_at": "2023-11-05"}`}
	ex := NewExtractor(llm, testLogger(t))

	fields, _, err := ex.ExtractDocument(context.Background(), blockgraph.Result{Text: "..."})
	if err != nil {
		t.Fatalf("ExtractDocument: %v", err)
	}
	if fields.Title != "Car Insurance Contract" || fields.Category != "contract" {
		t.Fatalf("fields: %+v", fields)
	}
}

func TestUserPromptCarriesFormsAndTables(t *testing.T) {
	llm := &fakeLLM{response: `{"merchant_name": "X", "total_amount": 1}`}
	ex := NewExtractor(llm, testLogger(t))

	parsed := blockgraph.Result{
		Text:  "some text",
		Forms: []blockgraph.FormField{{Key: "Total", Value: "123.45"}},
		Tables: []blockgraph.Table{
			{0: {0: "Item", 1: "Price"}, 1: {0: "Milk", 1: "1.19"}},
		},
	}
	if _, _, err := ex.ExtractReceipt(context.Background(), parsed); err != nil {
		t.Fatalf("ExtractReceipt: %v", err)
	}

	if !strings.Contains(llm.lastUser, "Total: 123.45") {
		t.Fatalf("form pair missing from prompt:\n%s", llm.lastUser)
	}
	if !strings.Contains(llm.lastUser, "Item | Price") || !strings.Contains(llm.lastUser, "Milk | 1.19") {
		t.Fatalf("table missing from prompt:\n%s", llm.lastUser)
	}
}
