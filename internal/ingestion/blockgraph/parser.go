package blockgraph

import (
	"sort"
	"strings"
)

// PageBreakMarker separates the text of consecutive pages in Result.Text.
const PageBreakMarker = "\n\n--- PAGE BREAK ---\n\n"

// Parse linearizes a block graph into reading-order text, reconstructed
// tables, and resolved form fields. It is deterministic for a given graph
// regardless of input slice order: lines sort by (page, top, id), tables and
// forms by (page, top, id) of their anchor block, and all structure is
// followed through relationships rather than positions in the input.
func Parse(blocks []Block) Result {
	idx := make(map[string]*Block, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		if b.ID != "" {
			idx[b.ID] = b
		}
	}

	var res Result
	res.Text, res.Confidence, res.Pages = renderLines(collectLines(blocks))
	res.Tables = buildTables(blocks, idx)
	res.Forms = resolveForms(blocks, idx)
	return res
}

func pageOf(b *Block) int {
	if b.Page > 0 {
		return b.Page
	}
	return 1
}

func topOf(b *Block) float64 {
	if b.Box != nil {
		return b.Box.Top
	}
	return 0
}

func collectLines(blocks []Block) []*Block {
	var lines []*Block
	for i := range blocks {
		if blocks[i].Type == BlockLine {
			lines = append(lines, &blocks[i])
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		pi, pj := pageOf(lines[i]), pageOf(lines[j])
		if pi != pj {
			return pi < pj
		}
		ti, tj := topOf(lines[i]), topOf(lines[j])
		if ti != tj {
			return ti < tj
		}
		return lines[i].ID < lines[j].ID
	})
	return lines
}

func renderLines(lines []*Block) (string, float64, []int) {
	var (
		sb        strings.Builder
		confSum   float64
		pages     []int
		prevPage  = -1
		wroteLine bool
	)
	for _, line := range lines {
		p := pageOf(line)
		if p != prevPage {
			if prevPage != -1 {
				sb.WriteString(PageBreakMarker)
			}
			pages = append(pages, p)
			prevPage = p
			wroteLine = false
		}
		if wroteLine {
			sb.WriteString("\n")
		}
		sb.WriteString(line.Text)
		wroteLine = true
		confSum += line.Confidence
	}
	conf := 0.0
	if len(lines) > 0 {
		conf = confSum / float64(len(lines))
	}
	return sb.String(), conf, pages
}

// childText space-joins the text of a block's CHILD words. Missing ids and
// non-word children are skipped rather than treated as errors; the provider
// occasionally references blocks outside the returned graph.
func childText(b *Block, idx map[string]*Block) string {
	var parts []string
	for _, rel := range b.Relationships {
		if rel.Type != RelationshipChild {
			continue
		}
		for _, id := range rel.IDs {
			child, ok := idx[id]
			if !ok || child.Type != BlockWord {
				continue
			}
			if t := strings.TrimSpace(child.Text); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func buildTables(blocks []Block, idx map[string]*Block) []Table {
	var anchors []*Block
	for i := range blocks {
		if blocks[i].Type == BlockTable {
			anchors = append(anchors, &blocks[i])
		}
	}
	sortByAnchor(anchors)

	tables := make([]Table, 0, len(anchors))
	for _, tb := range anchors {
		grid := Table{}
		for _, rel := range tb.Relationships {
			if rel.Type != RelationshipChild {
				continue
			}
			for _, id := range rel.IDs {
				cell, ok := idx[id]
				if !ok || cell.Type != BlockCell {
					continue
				}
				if cell.RowIndex < 1 || cell.ColumnIndex < 1 {
					continue
				}
				row, col := cell.RowIndex-1, cell.ColumnIndex-1
				if grid[row] == nil {
					grid[row] = map[int]string{}
				}
				grid[row][col] = childText(cell, idx)
			}
		}
		tables = append(tables, grid)
	}
	return tables
}

func resolveForms(blocks []Block, idx map[string]*Block) []FormField {
	var keys []*Block
	for i := range blocks {
		b := &blocks[i]
		if b.Type == BlockKeyValueSet && hasEntityType(b, EntityKey) {
			keys = append(keys, b)
		}
	}
	sortByAnchor(keys)

	forms := make([]FormField, 0, len(keys))
	for _, key := range keys {
		keyText := childText(key, idx)
		if keyText == "" {
			continue
		}
		value := valueBlock(key, idx)
		if value == nil {
			continue
		}
		valueText := childText(value, idx)
		if valueText == "" {
			continue
		}
		forms = append(forms, FormField{
			Key:        keyText,
			Value:      valueText,
			Confidence: (key.Confidence + value.Confidence) / 2,
		})
	}
	return forms
}

func valueBlock(key *Block, idx map[string]*Block) *Block {
	for _, rel := range key.Relationships {
		if rel.Type != RelationshipValue {
			continue
		}
		for _, id := range rel.IDs {
			v, ok := idx[id]
			if ok && v.Type == BlockKeyValueSet && hasEntityType(v, EntityValue) {
				return v
			}
		}
	}
	return nil
}

func hasEntityType(b *Block, want string) bool {
	for _, et := range b.EntityTypes {
		if et == want {
			return true
		}
	}
	return false
}

func sortByAnchor(blocks []*Block) {
	sort.Slice(blocks, func(i, j int) bool {
		pi, pj := pageOf(blocks[i]), pageOf(blocks[j])
		if pi != pj {
			return pi < pj
		}
		ti, tj := topOf(blocks[i]), topOf(blocks[j])
		if ti != tj {
			return ti < tj
		}
		return blocks[i].ID < blocks[j].ID
	})
}
