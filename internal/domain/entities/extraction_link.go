package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExtractionLink records which structured entity is the primary extraction
// for a File and when extraction happened. During reprocessing a File can
// transiently hold links of different ages; cleanup soft-deletes the old ones
// and the junction is purged last.
type ExtractionLink struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	EntityKind  EntityKind `gorm:"column:entity_kind;not null;index" json:"entity_kind"`
	EntityID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"entity_id"`

	Primary     bool      `gorm:"column:is_primary;not null;default:true" json:"is_primary"`
	ExtractedAt time.Time `gorm:"column:extracted_at;not null" json:"extracted_at"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ExtractionLink) TableName() string { return "extraction_link" }
