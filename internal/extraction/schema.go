package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// receiptSchema constrains what the model may return for a receipt. Amounts
// are decimal currency units here and converted to cents at the boundary.
var receiptSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"merchant_name", "total_amount"},
	"additionalProperties": false,
	"properties": map[string]any{
		"merchant_name": map[string]any{"type": "string", "minLength": 1},
		"total_amount":  map[string]any{"type": "number", "minimum": 0},
		"tax_amount":    map[string]any{"type": "number", "minimum": 0},
		"currency":      map[string]any{"type": "string", "pattern": "^[A-Z]{3}$"},
		"purchase_date": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"line_items": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"required":             []any{"description"},
				"additionalProperties": false,
				"properties": map[string]any{
					"description":  map[string]any{"type": "string", "minLength": 1},
					"quantity":     map[string]any{"type": "integer", "minimum": 1},
					"unit_amount":  map[string]any{"type": "number", "minimum": 0},
					"total_amount": map[string]any{"type": "number", "minimum": 0},
				},
			},
		},
	},
}

var documentSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"title"},
	"additionalProperties": false,
	"properties": map[string]any{
		"title":     map[string]any{"type": "string", "minLength": 1},
		"summary":   map[string]any{"type": "string"},
		"category":  map[string]any{"type": "string"},
		"issued_at": map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
	},
}

var documentAnalysisSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"category", "summary"},
	"additionalProperties": false,
	"properties": map[string]any{
		"category": map[string]any{
			"type": "string",
			"enum": []any{"invoice", "contract", "voucher", "warranty", "bank_statement", "return_policy", "other"},
		},
		"summary": map[string]any{"type": "string", "minLength": 1},
	},
}

// ErrSchemaViolation marks a model response that parsed as JSON but does
// not match the expected shape. Retrying the same text rarely helps.
var ErrSchemaViolation = errors.New("extraction output violates schema")

func IsSchemaViolation(err error) bool {
	return errors.Is(err, ErrSchemaViolation)
}

// validateAgainstSchema checks a raw model response before anything is
// persisted from it.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}
