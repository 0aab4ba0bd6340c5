package blockgraph

type BlockType string

const (
	BlockLine        BlockType = "LINE"
	BlockWord        BlockType = "WORD"
	BlockTable       BlockType = "TABLE"
	BlockCell        BlockType = "CELL"
	BlockKeyValueSet BlockType = "KEY_VALUE_SET"
)

type RelationshipType string

const (
	RelationshipChild RelationshipType = "CHILD"
	RelationshipValue RelationshipType = "VALUE"
)

const (
	EntityKey   = "KEY"
	EntityValue = "VALUE"
)

// Relationship is a directed edge from one block to others. CHILD edges are
// compositional (table -> cells, cell -> words, key -> key words); VALUE
// edges link a form KEY block to its VALUE block.
type Relationship struct {
	Type RelationshipType `json:"type"`
	IDs  []string         `json:"ids"`
}

// BoundingBox positions a block on its page with normalized coordinates.
// Only Top participates in reading order; the rest is carried through for
// downstream consumers.
type BoundingBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Block is one node of the provider's analysis graph. The provider emits
// blocks in no particular order; everything positional or structural must be
// read off the declared geometry and relationships.
type Block struct {
	ID         string       `json:"id"`
	Type       BlockType    `json:"type"`
	Text       string       `json:"text,omitempty"`
	Confidence float64      `json:"confidence,omitempty"`
	Page       int          `json:"page,omitempty"`
	Box        *BoundingBox `json:"box,omitempty"`

	// 1-based cell coordinates, set on CELL blocks only.
	RowIndex    int `json:"row_index,omitempty"`
	ColumnIndex int `json:"column_index,omitempty"`

	// KEY or VALUE, set on KEY_VALUE_SET blocks only.
	EntityTypes []string `json:"entity_types,omitempty"`

	Relationships []Relationship `json:"relationships,omitempty"`
}

// Table is a sparse grid: row -> column -> cell text, both 0-based.
type Table map[int]map[int]string

// FormField is one resolved key/value pair from the document's form layer.
type FormField struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Result is the linearized view of one block graph.
type Result struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Pages      []int       `json:"pages"`
	Tables     []Table     `json:"tables"`
	Forms      []FormField `json:"forms"`
}
