package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Invoice struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	InvoiceNumber string     `gorm:"column:invoice_number;index" json:"invoice_number,omitempty"`
	VendorName    string     `gorm:"column:vendor_name" json:"vendor_name,omitempty"`
	TotalAmount   int64      `gorm:"column:total_amount;not null;default:0" json:"total_amount"`
	Currency      string     `gorm:"column:currency" json:"currency,omitempty"`
	IssuedAt      *time.Time `gorm:"column:issued_at" json:"issued_at,omitempty"`
	DueAt         *time.Time `gorm:"column:due_at" json:"due_at,omitempty"`

	RawFields datatypes.JSON `gorm:"column:raw_fields;type:jsonb" json:"raw_fields,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Invoice) TableName() string { return "invoice" }

type InvoiceLineItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	InvoiceID   uuid.UUID `gorm:"type:uuid;not null;index" json:"invoice_id"`
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

func (InvoiceLineItem) TableName() string { return "invoice_line_item" }
