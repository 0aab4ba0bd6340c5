package redis

import (
	"github.com/google/uuid"

	types "github.com/papervault/papervault-backend/internal/domain"
)

// FileMeta is the "file" metadata section, written at dispatch time and
// read by every stage. PreviousEntities is only populated for reprocessing
// runs; those refs stay soft deleted until the new chain's terminal stage
// purges them.
type FileMeta struct {
	FileID           uuid.UUID         `json:"file_id"`
	FileGUID         string            `json:"file_guid"`
	FileType         string            `json:"file_type"`
	Extension        string            `json:"extension"`
	Source           string            `json:"source,omitempty"`
	ImportID         *uuid.UUID        `json:"import_id,omitempty"`
	InheritedTagIDs  []uuid.UUID       `json:"inherited_tag_ids,omitempty"`
	Reprocessing     bool              `json:"reprocessing,omitempty"`
	PreviousEntities []types.EntityRef `json:"previous_entities,omitempty"`
}

// PipelineMeta is the "pipeline" metadata section, written by the
// extraction stage once the primary entity exists.
type PipelineMeta struct {
	EntityKind types.EntityKind `json:"entity_kind"`
	EntityID   uuid.UUID        `json:"entity_id"`
}
