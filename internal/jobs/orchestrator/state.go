package orchestrator

import (
	"time"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageState is the persisted per-stage record inside ChainState. Attempts
// counts failed executions; a successful execution does not bump it.
type StageState struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Attempts   int            `json:"attempts"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	LastError  string         `json:"last_error,omitempty"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	NextRunAt  *time.Time     `json:"next_run_at,omitempty"`
}

// ChainState is the orchestrator snapshot serialized into job_run.result.
// A requeued run reloads it and resumes after the last succeeded stage.
type ChainState struct {
	Version      int                    `json:"version"`
	Stages       map[string]*StageState `json:"stages"`
	WaitUntil    *time.Time             `json:"wait_until,omitempty"`
	LastProgress int                    `json:"last_progress"`
	Meta         map[string]any         `json:"meta,omitempty"`
}

func (s *ChainState) ensure() {
	if s.Version <= 0 {
		s.Version = 1
	}
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
	if s.Meta == nil {
		s.Meta = map[string]any{}
	}
}

func (s *ChainState) EnsureStage(name string) *StageState {
	s.ensure()
	ss := s.Stages[name]
	if ss == nil {
		ss = &StageState{
			Name:    name,
			Status:  StagePending,
			Outputs: map[string]any{},
		}
		s.Stages[name] = ss
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	return ss
}

// Output reads a value produced by an earlier stage in the same chain.
func (s *ChainState) Output(stage, key string) (any, bool) {
	if s == nil || s.Stages == nil {
		return nil, false
	}
	ss := s.Stages[stage]
	if ss == nil || ss.Outputs == nil {
		return nil, false
	}
	v, ok := ss.Outputs[key]
	return v, ok
}
