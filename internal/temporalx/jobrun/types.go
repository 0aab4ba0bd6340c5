package jobrun

import "time"

const (
	WorkflowName = "job_run"
	ActivityTick = "job_run_tick"
)

// TickResult is what one activity tick reports back to the workflow loop.
// Retryable is set for failed runs that still have job-level attempts left.
type TickResult struct {
	JobID     string     `json:"job_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	Message   string     `json:"message,omitempty"`
	Retryable bool       `json:"retryable,omitempty"`
	WaitUntil *time.Time `json:"wait_until,omitempty"`
}
