package tags

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/papervault/papervault-backend/internal/domain/entities"
)

type Tag struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Tag) TableName() string { return "tag" }

// EntityTag attaches a tag to one structured entity. Inherited tag ids
// travel through the job payload and are applied by the apply_tags stage.
type EntityTag struct {
	ID          uuid.UUID           `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TagID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"tag_id"`
	OwnerUserID uuid.UUID           `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	EntityKind  entities.EntityKind `gorm:"column:entity_kind;not null;index" json:"entity_kind"`
	EntityID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"entity_id"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (EntityTag) TableName() string { return "entity_tag" }
