package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Receipt is the structured record extracted from a receipt file.
type Receipt struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	MerchantName string     `gorm:"column:merchant_name" json:"merchant_name,omitempty"`
	MerchantID   *uuid.UUID `gorm:"type:uuid;column:merchant_id;index" json:"merchant_id,omitempty"`

	TotalAmount  int64      `gorm:"column:total_amount;not null;default:0" json:"total_amount"`
	TaxAmount    int64      `gorm:"column:tax_amount;not null;default:0" json:"tax_amount"`
	Currency     string     `gorm:"column:currency" json:"currency,omitempty"`
	PurchaseDate *time.Time `gorm:"column:purchase_date;index" json:"purchase_date,omitempty"`

	OCRConfidence float64        `gorm:"column:ocr_confidence" json:"ocr_confidence,omitempty"`
	RawFields     datatypes.JSON `gorm:"column:raw_fields;type:jsonb" json:"raw_fields,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Receipt) TableName() string { return "receipt" }

// LineItem belongs to exactly one Receipt and dies with it.
type LineItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ReceiptID   uuid.UUID `gorm:"type:uuid;not null;index" json:"receipt_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Position    int    `gorm:"column:position;not null;default:0" json:"position"`
	Description string `gorm:"column:description" json:"description,omitempty"`
	Quantity    int    `gorm:"column:quantity;not null;default:1" json:"quantity"`
	UnitAmount  int64  `gorm:"column:unit_amount;not null;default:0" json:"unit_amount"`
	TotalAmount int64  `gorm:"column:total_amount;not null;default:0" json:"total_amount"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LineItem) TableName() string { return "line_item" }
