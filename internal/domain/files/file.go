package files

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FileType string

const (
	FileTypeReceipt  FileType = "receipt"
	FileTypeDocument FileType = "document"
)

type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
)

// File is the root record for one uploaded artifact, independent of the
// structured content later extracted from it. Rows are never physically
// removed until every derived entity and blob variant has been purged.
type File struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	GUID        string     `gorm:"column:guid;not null;uniqueIndex" json:"guid"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	FileType    FileType   `gorm:"column:file_type;not null;index" json:"file_type"`
	Status      FileStatus `gorm:"column:status;not null;index" json:"status"`

	// Hex-encoded SHA-256 over the complete raw byte content, not the
	// converted form. Dedup scoping lives in FileRepo.FindDuplicate.
	ContentHash string `gorm:"column:content_hash;index" json:"content_hash,omitempty"`

	OriginalPath  string `gorm:"column:original_path" json:"original_path,omitempty"`
	ProcessedPath string `gorm:"column:processed_path" json:"processed_path,omitempty"`
	ArchivePath   string `gorm:"column:archive_path" json:"archive_path,omitempty"`
	PreviewPath   string `gorm:"column:preview_path" json:"preview_path,omitempty"`

	Extension string `gorm:"column:extension" json:"extension,omitempty"`
	SizeBytes int64  `gorm:"column:size_bytes;not null;default:0" json:"size_bytes"`
	Error     string `gorm:"column:error" json:"error,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (File) TableName() string { return "file" }
