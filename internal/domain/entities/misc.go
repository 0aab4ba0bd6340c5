package entities

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Contract struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Title            string     `gorm:"column:title" json:"title,omitempty"`
	Counterparty     string     `gorm:"column:counterparty" json:"counterparty,omitempty"`
	StartsAt         *time.Time `gorm:"column:starts_at" json:"starts_at,omitempty"`
	EndsAt           *time.Time `gorm:"column:ends_at" json:"ends_at,omitempty"`
	NoticePeriodDays int        `gorm:"column:notice_period_days;not null;default:0" json:"notice_period_days"`

	RawFields datatypes.JSON `gorm:"column:raw_fields;type:jsonb" json:"raw_fields,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Contract) TableName() string { return "contract" }

type Voucher struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Code      string     `gorm:"column:code" json:"code,omitempty"`
	Value     int64      `gorm:"column:value;not null;default:0" json:"value"`
	Currency  string     `gorm:"column:currency" json:"currency,omitempty"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Voucher) TableName() string { return "voucher" }

type Warranty struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	ProductName string     `gorm:"column:product_name" json:"product_name,omitempty"`
	VendorName  string     `gorm:"column:vendor_name" json:"vendor_name,omitempty"`
	ExpiresAt   *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Warranty) TableName() string { return "warranty" }

type BankStatement struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	AccountIBAN    string     `gorm:"column:account_iban;index" json:"account_iban,omitempty"`
	PeriodStart    *time.Time `gorm:"column:period_start" json:"period_start,omitempty"`
	PeriodEnd      *time.Time `gorm:"column:period_end" json:"period_end,omitempty"`
	OpeningBalance int64      `gorm:"column:opening_balance;not null;default:0" json:"opening_balance"`
	ClosingBalance int64      `gorm:"column:closing_balance;not null;default:0" json:"closing_balance"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BankStatement) TableName() string { return "bank_statement" }

type BankTransaction struct {
	ID              uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	BankStatementID uuid.UUID `gorm:"type:uuid;not null;index" json:"bank_statement_id"`
	OwnerUserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	BookedAt     *time.Time `gorm:"column:booked_at" json:"booked_at,omitempty"`
	Description  string     `gorm:"column:description" json:"description,omitempty"`
	Amount       int64      `gorm:"column:amount;not null;default:0" json:"amount"`
	Counterparty string     `gorm:"column:counterparty" json:"counterparty,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (BankTransaction) TableName() string { return "bank_transaction" }

type ReturnPolicy struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	VendorName string     `gorm:"column:vendor_name" json:"vendor_name,omitempty"`
	WindowDays int        `gorm:"column:window_days;not null;default:0" json:"window_days"`
	ExpiresAt  *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`

	DeletedReason string         `gorm:"column:deleted_reason;index" json:"deleted_reason,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ReturnPolicy) TableName() string { return "return_policy" }
