package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/papervault/papervault-backend/internal/data/repos/testutil"
	types "github.com/papervault/papervault-backend/internal/domain"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(nil, testutil.Logger(t))
	e.MinPollInterval = time.Millisecond
	e.MaxPollInterval = 2 * time.Millisecond
	return e
}

func newTestContext(t *testing.T) *jobrt.Context {
	t.Helper()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     "receipt_process",
		Status:      types.JobStatusRunning,
		Payload:     datatypes.JSON([]byte(`{}`)),
	}
	return jobrt.NewContext(context.Background(), nil, job, nil, nil)
}

func namedStage(name string, pct int, run func(*jobrt.Context, *ChainState) (map[string]any, error)) Stage {
	return Stage{
		Name:     name,
		StartPct: pct,
		EndPct:   pct + 10,
		Run:      run,
	}
}

func TestEngineRunsStagesInOrder(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	var ran []string
	mk := func(name string, pct int) Stage {
		return namedStage(name, pct, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			ran = append(ran, name)
			return map[string]any{"done": true}, nil
		})
	}
	err := e.Run(jc, []Stage{mk("a", 0), mk("b", 20), mk("c", 40)}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ran) != 3 || ran[0] != "a" || ran[1] != "b" || ran[2] != "c" {
		t.Fatalf("stage order = %v", ran)
	}
	if jc.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status = %q, want succeeded", jc.Job.Status)
	}
	if jc.Job.Progress != 100 {
		t.Fatalf("job progress = %d, want 100", jc.Job.Progress)
	}
}

func TestEngineHaltsAtFirstFailedStage(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	laterRan := false
	stages := []Stage{
		namedStage("first", 0, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			return nil, nil
		}),
		namedStage("broken", 20, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			return nil, errors.New("boom")
		}),
		namedStage("later", 40, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			laterRan = true
			return nil, nil
		}),
	}
	if err := e.Run(jc, stages, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if laterRan {
		t.Fatal("stage after a failed stage ran")
	}
	if jc.Job.Status != types.JobStatusFailed {
		t.Fatalf("job status = %q, want failed", jc.Job.Status)
	}
	if jc.Job.Stage != "broken" {
		t.Fatalf("job stage = %q, want broken", jc.Job.Stage)
	}
}

func TestEngineResumesPastSucceededStages(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	counts := map[string]int{}
	mk := func(name string, pct int) Stage {
		return namedStage(name, pct, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			counts[name]++
			return nil, nil
		})
	}
	stages := []Stage{mk("a", 0), mk("b", 20)}
	if err := e.Run(jc, stages, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	// Second run over the same persisted state must not re-execute anything.
	jc.Job.Status = types.JobStatusRunning
	if err := e.Run(jc, stages, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if counts["a"] != 1 || counts["b"] != 1 {
		t.Fatalf("stage executions = %v, want each exactly once", counts)
	}
	if jc.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status = %q, want succeeded", jc.Job.Status)
	}
}

func TestEngineRetriesThenSucceeds(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	attempts := 0
	flaky := Stage{
		Name:     "flaky",
		StartPct: 0,
		EndPct:   50,
		Retry: RetryPolicy{
			MaxAttempts: 3,
			MinBackoff:  time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		},
		Run: func(*jobrt.Context, *ChainState) (map[string]any, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("transient")
			}
			return nil, nil
		},
	}

	// First pass fails and schedules a retry instead of failing the job.
	if err := e.Run(jc, []Stage{flaky}, nil); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if jc.Job.Status == types.JobStatusFailed {
		t.Fatal("job failed on a retryable error")
	}

	time.Sleep(5 * time.Millisecond)
	if err := e.Run(jc, []Stage{flaky}, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
	if jc.Job.Status != types.JobStatusSucceeded {
		t.Fatalf("job status = %q, want succeeded", jc.Job.Status)
	}
}

func TestEngineSkipsOptionalStage(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	optionalRan := false
	terminalRan := false
	stages := []Stage{
		{
			Name:     "optional",
			StartPct: 0,
			EndPct:   40,
			Skip: func(*jobrt.Context, *ChainState) (bool, error) {
				return true, nil
			},
			Run: func(*jobrt.Context, *ChainState) (map[string]any, error) {
				optionalRan = true
				return nil, nil
			},
		},
		namedStage("terminal", 50, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			terminalRan = true
			return nil, nil
		}),
	}
	if err := e.Run(jc, stages, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if optionalRan {
		t.Fatal("skipped stage ran")
	}
	if !terminalRan {
		t.Fatal("stage after a skipped stage did not run")
	}
	st, _ := LoadState(jc, 1)
	if st.Stages["optional"].Status != StageSkipped {
		t.Fatalf("optional stage status = %q, want skipped", st.Stages["optional"].Status)
	}
}

func TestEngineStageOutputsVisibleDownstream(t *testing.T) {
	e := newTestEngine(t)
	jc := newTestContext(t)

	var got any
	stages := []Stage{
		namedStage("produce", 0, func(*jobrt.Context, *ChainState) (map[string]any, error) {
			return map[string]any{"entity_id": "abc"}, nil
		}),
		namedStage("consume", 20, func(_ *jobrt.Context, st *ChainState) (map[string]any, error) {
			got, _ = st.Output("produce", "entity_id")
			return nil, nil
		}),
	}
	if err := e.Run(jc, stages, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "abc" {
		t.Fatalf("downstream output = %v, want abc", got)
	}
}
