package jobs

import (
	"time"

	"github.com/google/uuid"
)

const (
	StageHistoryRunning   = "running"
	StageHistorySucceeded = "succeeded"
	StageHistoryFailed    = "failed"
)

// JobStageHistory is the append-only observability record for stage
// executions: one row per attempt keyed by (job_id, stage_order, attempt).
// Retries append new rows, existing rows are never updated. StageOrder is
// purely informational (which attempt got further along the chain); the
// chain itself is sequenced by the orchestrator, not by this number.
type JobStageHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	JobID      uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_stage_attempt,priority:1" json:"job_id"`
	StageName  string    `gorm:"column:stage_name;not null" json:"stage_name"`
	StageOrder int       `gorm:"column:stage_order;not null;uniqueIndex:idx_stage_attempt,priority:2" json:"stage_order"`
	Attempt    int       `gorm:"column:attempt;not null;default:1;uniqueIndex:idx_stage_attempt,priority:3" json:"attempt"`

	Status string `gorm:"column:status;not null;index" json:"status"`
	Error  string `gorm:"column:error" json:"error,omitempty"`

	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (JobStageHistory) TableName() string { return "job_stage_history" }
