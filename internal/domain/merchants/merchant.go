package merchants

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Merchant is a per-user aggregate grown as a side effect of receipt
// extraction: the match stage either attaches a receipt to an existing
// merchant by fuzzy name match or creates a new one.
type Merchant struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Name           string `gorm:"column:name;not null" json:"name"`
	NormalizedName string `gorm:"column:normalized_name;not null;index" json:"normalized_name"`

	MatchCount    int        `gorm:"column:match_count;not null;default:0" json:"match_count"`
	LastMatchedAt *time.Time `gorm:"column:last_matched_at" json:"last_matched_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Merchant) TableName() string { return "merchant" }
