package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/papervault/papervault-backend/internal/ingestion/blockgraph"
	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// Synchronous processing ceiling imposed by the provider.
const MaxSyncAnalyzeBytes = 20 << 20

// Analyzer turns raw document bytes into the provider-neutral block graph
// consumed by blockgraph.Parse.
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, mimeType string) ([]blockgraph.Block, error)
	Close() error
}

var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
}

// ValidateAnalyzeInput enforces the provider limits before any network call.
func ValidateAnalyzeInput(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty document")
	}
	if len(data) > MaxSyncAnalyzeBytes {
		return fmt.Errorf("document of %d bytes exceeds the %d byte synchronous limit", len(data), MaxSyncAnalyzeBytes)
	}
	if !allowedMimeTypes[strings.ToLower(strings.TrimSpace(mimeType))] {
		return fmt.Errorf("unsupported mime type %q", mimeType)
	}
	return nil
}

type documentAnalyzer struct {
	log    *logger.Logger
	client *documentai.DocumentProcessorClient

	processorName string
}

// NewDocumentAnalyzer builds the Document AI backed analyzer used for PDFs
// and TIFFs, where table and form structure matters.
func NewDocumentAnalyzer(baseLog *logger.Logger) (Analyzer, error) {
	serviceLog := baseLog.With("service", "gcp.DocumentAnalyzer")

	project := envutil.Str("DOCUMENTAI_PROJECT_ID", "")
	location := envutil.Str("DOCUMENTAI_LOCATION", "us")
	processorID := envutil.Str("DOCUMENTAI_PROCESSOR_ID", "")
	if project == "" || processorID == "" {
		return nil, fmt.Errorf("missing env vars DOCUMENTAI_PROJECT_ID / DOCUMENTAI_PROCESSOR_ID")
	}

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)

	client, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	serviceLog.Info("Document AI initialized", "endpoint", endpoint, "processor", name)

	return &documentAnalyzer{log: serviceLog, client: client, processorName: name}, nil
}

func (s *documentAnalyzer) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *documentAnalyzer) Analyze(ctx context.Context, data []byte, mimeType string) ([]blockgraph.Block, error) {
	if err := ValidateAnalyzeInput(data, mimeType); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := s.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: s.processorName,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return nil, nil
	}
	return blocksFromDocument(resp.Document), nil
}

// blocksFromDocument flattens the Document AI response into the neutral
// block graph. Ids are synthesized per page element; words inside cells and
// form fields get their own WORD blocks so the parser can concatenate them
// through CHILD edges like it does for any provider.
func blocksFromDocument(doc *documentaipb.Document) []blockgraph.Block {
	var out []blockgraph.Block
	if doc == nil {
		return out
	}

	for _, page := range doc.Pages {
		if page == nil {
			continue
		}
		pageNum := int(page.PageNumber)
		if pageNum <= 0 {
			pageNum = 1
		}

		for li, line := range page.Lines {
			if line == nil || line.Layout == nil {
				continue
			}
			text := strings.TrimSpace(textFromAnchor(doc.Text, line.Layout.TextAnchor))
			if text == "" {
				continue
			}
			out = append(out, blockgraph.Block{
				ID:         fmt.Sprintf("p%d-line%d", pageNum, li),
				Type:       blockgraph.BlockLine,
				Text:       text,
				Confidence: float64(line.Layout.Confidence),
				Page:       pageNum,
				Box:        boxFromLayout(line.Layout),
			})
		}

		for ti, table := range page.Tables {
			if table == nil {
				continue
			}
			tableID := fmt.Sprintf("p%d-table%d", pageNum, ti)
			var cellIDs []string

			rows := append(append([]*documentaipb.Document_Page_Table_TableRow{}, table.HeaderRows...), table.BodyRows...)
			for ri, row := range rows {
				if row == nil {
					continue
				}
				for ci, cell := range row.Cells {
					if cell == nil || cell.Layout == nil {
						continue
					}
					text := strings.TrimSpace(textFromAnchor(doc.Text, cell.Layout.TextAnchor))
					cellID := fmt.Sprintf("%s-cell%d-%d", tableID, ri, ci)
					wordID := cellID + "-w"
					out = append(out,
						blockgraph.Block{
							ID:          cellID,
							Type:        blockgraph.BlockCell,
							Page:        pageNum,
							RowIndex:    ri + 1,
							ColumnIndex: ci + 1,
							Confidence:  float64(cell.Layout.Confidence),
							Relationships: []blockgraph.Relationship{
								{Type: blockgraph.RelationshipChild, IDs: []string{wordID}},
							},
						},
						blockgraph.Block{
							ID:   wordID,
							Type: blockgraph.BlockWord,
							Text: text,
							Page: pageNum,
						},
					)
					cellIDs = append(cellIDs, cellID)
				}
			}

			out = append(out, blockgraph.Block{
				ID:   tableID,
				Type: blockgraph.BlockTable,
				Page: pageNum,
				Box:  boxFromLayout(tableLayout(table)),
				Relationships: []blockgraph.Relationship{
					{Type: blockgraph.RelationshipChild, IDs: cellIDs},
				},
			})
		}

		for fi, field := range page.FormFields {
			if field == nil || field.FieldName == nil || field.FieldValue == nil {
				continue
			}
			keyText := strings.TrimSpace(textFromAnchor(doc.Text, field.FieldName.TextAnchor))
			valueText := strings.TrimSpace(textFromAnchor(doc.Text, field.FieldValue.TextAnchor))

			keyID := fmt.Sprintf("p%d-kv%d-key", pageNum, fi)
			valueID := fmt.Sprintf("p%d-kv%d-value", pageNum, fi)
			out = append(out,
				blockgraph.Block{
					ID:          keyID,
					Type:        blockgraph.BlockKeyValueSet,
					EntityTypes: []string{blockgraph.EntityKey},
					Page:        pageNum,
					Confidence:  float64(field.FieldName.Confidence),
					Box:         boxFromLayout(field.FieldName),
					Relationships: []blockgraph.Relationship{
						{Type: blockgraph.RelationshipChild, IDs: []string{keyID + "-w"}},
						{Type: blockgraph.RelationshipValue, IDs: []string{valueID}},
					},
				},
				blockgraph.Block{ID: keyID + "-w", Type: blockgraph.BlockWord, Text: keyText, Page: pageNum},
				blockgraph.Block{
					ID:          valueID,
					Type:        blockgraph.BlockKeyValueSet,
					EntityTypes: []string{blockgraph.EntityValue},
					Page:        pageNum,
					Confidence:  float64(field.FieldValue.Confidence),
					Relationships: []blockgraph.Relationship{
						{Type: blockgraph.RelationshipChild, IDs: []string{valueID + "-w"}},
					},
				},
				blockgraph.Block{ID: valueID + "-w", Type: blockgraph.BlockWord, Text: valueText, Page: pageNum},
			)
		}
	}

	return out
}

func tableLayout(t *documentaipb.Document_Page_Table) *documentaipb.Document_Page_Layout {
	if t == nil {
		return nil
	}
	return t.Layout
}

func boxFromLayout(layout *documentaipb.Document_Page_Layout) *blockgraph.BoundingBox {
	if layout == nil || layout.BoundingPoly == nil {
		return nil
	}
	verts := layout.BoundingPoly.NormalizedVertices
	if len(verts) == 0 {
		return nil
	}
	minX, minY := float64(verts[0].X), float64(verts[0].Y)
	maxX, maxY := minX, minY
	for _, v := range verts[1:] {
		if v == nil {
			continue
		}
		x, y := float64(v.X), float64(v.Y)
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x > maxX {
			maxX = x
		}
		if y > maxY {
			maxY = y
		}
	}
	return &blockgraph.BoundingBox{Top: minY, Left: minX, Width: maxX - minX, Height: maxY - minY}
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}
