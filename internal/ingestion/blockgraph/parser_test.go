package blockgraph

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestParseEmptyGraph(t *testing.T) {
	res := Parse(nil)
	if res.Text != "" || res.Confidence != 0 || len(res.Pages) != 0 {
		t.Fatalf("empty graph: %+v", res)
	}
	if len(res.Tables) != 0 || len(res.Forms) != 0 {
		t.Fatalf("empty graph tables/forms: %+v", res)
	}
}

func TestParseLineOrdering(t *testing.T) {
	blocks := []Block{
		{ID: "l2", Type: BlockLine, Text: "Second line", Confidence: 0.8, Box: &BoundingBox{Top: 0.5}},
		{ID: "l1", Type: BlockLine, Text: "First line", Confidence: 0.9, Box: &BoundingBox{Top: 0.1}},
	}
	res := Parse(blocks)

	first := strings.Index(res.Text, "First line")
	second := strings.Index(res.Text, "Second line")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("line order wrong: %q", res.Text)
	}
	if res.Text != "First line\nSecond line" {
		t.Fatalf("linearized text: %q", res.Text)
	}
	if math.Abs(res.Confidence-0.85) > 1e-9 {
		t.Fatalf("confidence: got %v", res.Confidence)
	}
	if !reflect.DeepEqual(res.Pages, []int{1}) {
		t.Fatalf("pages: %v", res.Pages)
	}
}

func TestParsePageBreaks(t *testing.T) {
	blocks := []Block{
		{ID: "b", Type: BlockLine, Text: "page two", Page: 2, Box: &BoundingBox{Top: 0.1}},
		{ID: "a", Type: BlockLine, Text: "page one", Page: 1, Box: &BoundingBox{Top: 0.9}},
	}
	res := Parse(blocks)

	want := "page one" + PageBreakMarker + "page two"
	if res.Text != want {
		t.Fatalf("text: %q", res.Text)
	}
	if !reflect.DeepEqual(res.Pages, []int{1, 2}) {
		t.Fatalf("pages: %v", res.Pages)
	}
}

func TestParseTableReconstruction(t *testing.T) {
	blocks := []Block{
		{ID: "t1", Type: BlockTable, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"c1"}},
		}},
		{ID: "c1", Type: BlockCell, RowIndex: 1, ColumnIndex: 1, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"w1"}},
		}},
		{ID: "w1", Type: BlockWord, Text: "A1"},
	}
	res := Parse(blocks)

	if len(res.Tables) != 1 {
		t.Fatalf("tables: %v", res.Tables)
	}
	if got := res.Tables[0][0][0]; got != "A1" {
		t.Fatalf("cell (0,0): %q", got)
	}
}

func TestParseTableMultiWordCellsAndSparsity(t *testing.T) {
	blocks := []Block{
		{ID: "t1", Type: BlockTable, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"c1", "c2", "bogus"}},
		}},
		{ID: "c1", Type: BlockCell, RowIndex: 1, ColumnIndex: 2, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"w1", "w2"}},
		}},
		{ID: "c2", Type: BlockCell, RowIndex: 3, ColumnIndex: 1, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"w3"}},
		}},
		{ID: "w1", Type: BlockWord, Text: "Grand"},
		{ID: "w2", Type: BlockWord, Text: "Total"},
		{ID: "w3", Type: BlockWord, Text: "9.99"},
	}
	res := Parse(blocks)

	if len(res.Tables) != 1 {
		t.Fatalf("tables: %v", res.Tables)
	}
	grid := res.Tables[0]
	if grid[0][1] != "Grand Total" {
		t.Fatalf("cell (0,1): %q", grid[0][1])
	}
	if grid[2][0] != "9.99" {
		t.Fatalf("cell (2,0): %q", grid[2][0])
	}
	// Rows 1 and columns without cells stay absent in the sparse grid.
	if _, ok := grid[1]; ok {
		t.Fatalf("row 1 should be absent: %v", grid)
	}
}

func TestParseFormResolution(t *testing.T) {
	blocks := []Block{
		{ID: "k1", Type: BlockKeyValueSet, EntityTypes: []string{"KEY"}, Confidence: 0.9, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"kw"}},
			{Type: RelationshipValue, IDs: []string{"v1"}},
		}},
		{ID: "v1", Type: BlockKeyValueSet, EntityTypes: []string{"VALUE"}, Confidence: 0.7, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"vw"}},
		}},
		{ID: "kw", Type: BlockWord, Text: "Total"},
		{ID: "vw", Type: BlockWord, Text: "123.45"},
	}
	res := Parse(blocks)

	if len(res.Forms) != 1 {
		t.Fatalf("forms: %v", res.Forms)
	}
	got := res.Forms[0]
	if got.Key != "Total" || got.Value != "123.45" {
		t.Fatalf("form pair: %+v", got)
	}
	if math.Abs(got.Confidence-0.8) > 1e-9 {
		t.Fatalf("form confidence: %v", got.Confidence)
	}
}

func TestParseFormSkipsIncompletePairs(t *testing.T) {
	blocks := []Block{
		// Key with no VALUE edge.
		{ID: "k1", Type: BlockKeyValueSet, EntityTypes: []string{"KEY"}, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"kw1"}},
		}},
		// Key whose value resolves to empty text.
		{ID: "k2", Type: BlockKeyValueSet, EntityTypes: []string{"KEY"}, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"kw2"}},
			{Type: RelationshipValue, IDs: []string{"v2"}},
		}},
		{ID: "v2", Type: BlockKeyValueSet, EntityTypes: []string{"VALUE"}},
		// Key with empty key text.
		{ID: "k3", Type: BlockKeyValueSet, EntityTypes: []string{"KEY"}, Relationships: []Relationship{
			{Type: RelationshipValue, IDs: []string{"v3"}},
		}},
		{ID: "v3", Type: BlockKeyValueSet, EntityTypes: []string{"VALUE"}, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"vw3"}},
		}},
		{ID: "kw1", Type: BlockWord, Text: "Orphan"},
		{ID: "kw2", Type: BlockWord, Text: "Empty"},
		{ID: "vw3", Type: BlockWord, Text: "ignored"},
	}
	res := Parse(blocks)
	if len(res.Forms) != 0 {
		t.Fatalf("expected no pairs, got %v", res.Forms)
	}
}

func TestParseInputOrderIndependence(t *testing.T) {
	base := []Block{
		{ID: "l1", Type: BlockLine, Text: "alpha", Confidence: 0.95, Page: 1, Box: &BoundingBox{Top: 0.1}},
		{ID: "l2", Type: BlockLine, Text: "beta", Confidence: 0.85, Page: 1, Box: &BoundingBox{Top: 0.6}},
		{ID: "l3", Type: BlockLine, Text: "gamma", Confidence: 0.75, Page: 2, Box: &BoundingBox{Top: 0.2}},
		{ID: "t1", Type: BlockTable, Box: &BoundingBox{Top: 0.3}, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"c1"}},
		}},
		{ID: "c1", Type: BlockCell, RowIndex: 2, ColumnIndex: 2, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"w1"}},
		}},
		{ID: "w1", Type: BlockWord, Text: "cell"},
		{ID: "k1", Type: BlockKeyValueSet, EntityTypes: []string{"KEY"}, Confidence: 0.9, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"kw"}},
			{Type: RelationshipValue, IDs: []string{"v1"}},
		}},
		{ID: "v1", Type: BlockKeyValueSet, EntityTypes: []string{"VALUE"}, Confidence: 0.9, Relationships: []Relationship{
			{Type: RelationshipChild, IDs: []string{"vw"}},
		}},
		{ID: "kw", Type: BlockWord, Text: "Date"},
		{ID: "vw", Type: BlockWord, Text: "2024-01-01"},
	}

	want := Parse(base)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]Block(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Parse(shuffled)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("shuffle %d diverged:\nwant %+v\ngot  %+v", i, want, got)
		}
	}
}
