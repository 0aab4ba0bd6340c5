package imports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusPartial   ImportStatus = "partial"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
)

// ImportSource tracks a bulk import (mail forward, drive sync, zip upload)
// that fanned out into individual file pipelines. The terminal optional
// stage of each pipeline reports back here.
type ImportSource struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_user_id"`

	Source string       `gorm:"column:source;not null" json:"source"`
	Status ImportStatus `gorm:"column:status;not null;index" json:"status"`

	TotalFiles     int        `gorm:"column:total_files;not null;default:0" json:"total_files"`
	ProcessedFiles int        `gorm:"column:processed_files;not null;default:0" json:"processed_files"`
	FailedFiles    int        `gorm:"column:failed_files;not null;default:0" json:"failed_files"`
	LastFileAt     *time.Time `gorm:"column:last_file_at" json:"last_file_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ImportSource) TableName() string { return "import_source" }
