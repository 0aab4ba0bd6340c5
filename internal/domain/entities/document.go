package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is the structured record for generic document files (anything a
// more specific extractor did not claim).
type Document struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Title    string     `gorm:"column:title" json:"title,omitempty"`
	Summary  string     `gorm:"column:summary;type:text" json:"summary,omitempty"`
	Category string     `gorm:"column:category;index" json:"category,omitempty"`
	IssuedAt *time.Time `gorm:"column:issued_at" json:"issued_at,omitempty"`

	OCRConfidence float64        `gorm:"column:ocr_confidence" json:"ocr_confidence,omitempty"`
	RawFields     datatypes.JSON `gorm:"column:raw_fields;type:jsonb" json:"raw_fields,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }
