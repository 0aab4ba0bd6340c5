package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"gorm.io/datatypes"

	jobrepos "github.com/papervault/papervault-backend/internal/data/repos/jobs"
	types "github.com/papervault/papervault-backend/internal/domain"
	jobrt "github.com/papervault/papervault-backend/internal/jobs/runtime"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// -------------------- Public API --------------------

type RetryPolicy struct {
	MaxAttempts int
	Retryable   func(err error) bool

	MinBackoff time.Duration // default 1s
	MaxBackoff time.Duration // default 30s
	JitterFrac float64       // default 0.20
}

// Stage is one inline step of a chain. Skip, when set, lets a stage mark
// itself skipped before running (optional stages like tag application).
// Run returns outputs that are persisted into ChainState and visible to
// later stages. Order, when set, overrides the chain position as the
// stage_order recorded into history rows so optional stages don't shift
// the numbering between chain variants.
type Stage struct {
	Name  string
	Order int

	Timeout  time.Duration
	StartPct int
	EndPct   int
	StartMsg string
	DoneMsg  string
	Retry    RetryPolicy
	Skip     func(ctx *jobrt.Context, st *ChainState) (bool, error)
	Run      func(ctx *jobrt.Context, st *ChainState) (map[string]any, error)
}

type Engine struct {
	History jobrepos.StageHistoryRepo

	MinPollInterval time.Duration // default 2s
	MaxPollInterval time.Duration // default 10s

	StateVersion int // default 1

	log *logger.Logger
}

func NewEngine(history jobrepos.StageHistoryRepo, baseLog *logger.Logger) *Engine {
	return &Engine{
		History:         history,
		MinPollInterval: 2 * time.Second,
		MaxPollInterval: 10 * time.Second,
		StateVersion:    1,
		log:             baseLog.With("component", "Orchestrator"),
	}
}

// Run executes a stage list for a single job. Already-succeeded and skipped
// stages are passed over, so a requeued job resumes where it left off. A
// failing stage either schedules a retry (requeue with backoff) or fails
// the whole job; stages after a failed stage never run.
func (e *Engine) Run(ctx *jobrt.Context, stages []Stage, finalResult map[string]any) error {
	jc, st, ok := e.preflight(ctx, stages, finalResult)
	if !ok {
		return nil
	}
	if e.waitGate(jc, st) {
		return nil
	}
	for i := range stages {
		def := stages[i]
		ss := st.EnsureStage(def.Name)
		if ss.Status == StageSucceeded || ss.Status == StageSkipped {
			continue
		}
		if e.stageWaitGate(jc, st, def, ss) {
			return nil
		}
		if def.Skip != nil {
			skip, serr := def.Skip(jc, st)
			if serr != nil {
				e.handleStageErr(jc, st, ss, i, def, serr, time.Now().UTC())
				return nil
			}
			if skip {
				ss.Status = StageSkipped
				markFinished(ss, "")
				_ = SaveState(jc, st)
				continue
			}
		}
		e.startStage(jc, st, def, ss)
		if e.runInline(jc, st, i, def, ss) {
			return nil
		}
	}
	e.succeed(jc, st, stages, finalResult)
	return nil
}

// -------------------- tight helpers --------------------

func (e *Engine) preflight(ctx *jobrt.Context, stages []Stage, finalResult map[string]any) (*jobrt.Context, *ChainState, bool) {
	if ctx == nil || ctx.Job == nil {
		return nil, nil, false
	}
	if len(stages) == 0 {
		ctx.Succeed("done", finalResult)
		return ctx, nil, false
	}
	if err := validateStages(stages); err != nil {
		ctx.Fail("validate", err)
		return ctx, nil, false
	}
	st, _ := LoadState(ctx, e.StateVersion)
	return ctx, st, true
}

func (e *Engine) waitGate(ctx *jobrt.Context, st *ChainState) bool {
	if st == nil || st.WaitUntil == nil {
		return false
	}
	now := time.Now()
	if now.Before(*st.WaitUntil) {
		sleep := clampDuration(st.WaitUntil.Sub(now), e.MinPollInterval, e.MaxPollInterval)
		if sleep > 0 {
			time.Sleep(sleep)
		}
		_ = SaveState(ctx, st)
		_ = yieldToQueue(ctx, "waiting", st.LastProgress)
		return true
	}
	st.WaitUntil = nil
	_ = SaveState(ctx, st)
	return false
}

func (e *Engine) stageWaitGate(ctx *jobrt.Context, st *ChainState, def Stage, ss *StageState) bool {
	if ss == nil || ss.NextRunAt == nil {
		return false
	}
	if time.Now().Before(*ss.NextRunAt) {
		sleep := clampDuration(time.Until(*ss.NextRunAt), e.MinPollInterval, e.MaxPollInterval)
		if sleep > 0 {
			time.Sleep(sleep)
		}
		_ = SaveState(ctx, st)
		_ = yieldToQueue(ctx, "waiting_"+def.Name, st.LastProgress)
		return true
	}
	ss.NextRunAt = nil
	return false
}

func (e *Engine) startStage(ctx *jobrt.Context, st *ChainState, def Stage, ss *StageState) {
	setProgress(ctx, st, def.Name, def.StartPct, msgOr(def.StartMsg, "Starting "+def.Name))
	ss.Status = StageRunning
	markStarted(ss)
	_ = SaveState(ctx, st)
}

func (e *Engine) runInline(ctx *jobrt.Context, st *ChainState, idx int, def Stage, ss *StageState) bool {
	attemptStart := time.Now().UTC()
	outs, runErr := safeRun(def, ctx, st)
	if runErr != nil {
		return e.handleStageErr(ctx, st, ss, idx, def, runErr, attemptStart)
	}
	if outs != nil {
		mergeOutputs(ss, outs)
	}
	ss.Status = StageSucceeded
	markFinished(ss, "")
	e.recordAttempt(ctx, idx, def, ss.Attempts+1, types.StageHistorySucceeded, "", attemptStart)
	setProgress(ctx, st, def.Name, def.EndPct, msgOr(def.DoneMsg, "Done "+def.Name))
	_ = SaveState(ctx, st)
	return false
}

func (e *Engine) succeed(ctx *jobrt.Context, st *ChainState, stages []Stage, finalResult map[string]any) {
	out := map[string]any{}
	for _, sdef := range stages {
		if ss := st.Stages[sdef.Name]; ss != nil && len(ss.Outputs) > 0 {
			out[sdef.Name] = ss.Outputs
		}
	}
	final := map[string]any{
		"chain":   st,
		"outputs": out,
	}
	for k, v := range finalResult {
		final[k] = v
	}
	ctx.Succeed("done", final)
}

// -------------------- state persistence --------------------

func LoadState(ctx *jobrt.Context, version int) (*ChainState, error) {
	st := &ChainState{Version: version, Stages: map[string]*StageState{}, Meta: map[string]any{}}
	if ctx == nil || ctx.Job == nil {
		st.ensure()
		return st, nil
	}
	raw := ctx.Job.Result
	if len(raw) == 0 || string(raw) == "null" {
		st.ensure()
		return st, nil
	}
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err == nil {
		if v, ok := probe["chain"]; ok {
			b, _ := json.Marshal(v)
			_ = json.Unmarshal(b, st)
			st.ensure()
			return st, nil
		}
	}
	if err := json.Unmarshal(raw, st); err != nil {
		st.Meta["state_unmarshal_error"] = err.Error()
		st.ensure()
		return st, nil
	}
	st.ensure()
	return st, nil
}

func SaveState(ctx *jobrt.Context, st *ChainState) error {
	if ctx == nil || ctx.Job == nil || st == nil {
		return nil
	}
	st.ensure()
	b, _ := json.Marshal(st)
	_ = ctx.Update(map[string]any{"result": datatypes.JSON(b)})
	ctx.Job.Result = datatypes.JSON(b)
	return nil
}

// -------------------- stage history --------------------

// recordAttempt appends one job_stage_history row for a finished attempt.
// History failures are logged, never fatal to the chain.
func (e *Engine) recordAttempt(ctx *jobrt.Context, idx int, def Stage, attempt int, status string, errMsg string, startedAt time.Time) {
	if e.History == nil || ctx == nil || ctx.Job == nil {
		return
	}
	now := time.Now().UTC()
	order := def.Order
	if order <= 0 {
		order = idx + 1
	}
	row := &types.JobStageHistory{
		JobID:      ctx.Job.ID,
		StageName:  def.Name,
		StageOrder: order,
		Attempt:    attempt,
		Status:     status,
		Error:      errMsg,
		StartedAt:  startedAt,
		FinishedAt: &now,
	}
	if err := e.History.Append(dbctx.Context{Ctx: ctx.Ctx}, row); err != nil && e.log != nil {
		e.log.Warn("Stage history append failed",
			"job_id", ctx.Job.ID,
			"stage", def.Name,
			"attempt", attempt,
			"error", err,
		)
	}
}

// -------------------- requeue --------------------

func yieldToQueue(ctx *jobrt.Context, stage string, progress int) error {
	if ctx == nil || ctx.Job == nil || ctx.Repo == nil {
		return nil
	}
	now := time.Now()
	return ctx.Repo.UpdateFields(dbctx.Context{Ctx: ctx.Ctx}, ctx.Job.ID, map[string]interface{}{
		"status":       types.JobStatusQueued,
		"stage":        stage,
		"progress":     progress,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	})
}

// -------------------- stage error handling --------------------

func (e *Engine) handleStageErr(ctx *jobrt.Context, st *ChainState, ss *StageState, idx int, def Stage, err error, attemptStart time.Time) bool {
	if ss == nil {
		return true
	}
	ss.Attempts++
	ss.LastError = errString(err)
	ss.Status = StageFailed
	markFinished(ss, ss.LastError)
	e.recordAttempt(ctx, idx, def, ss.Attempts, types.StageHistoryFailed, ss.LastError, attemptStart)
	if shouldRetry(def.Retry, ss.Attempts, err) {
		delay := computeBackoff(def.Retry, ss.Attempts)
		when := time.Now().Add(delay)
		ss.NextRunAt = &when
		st.WaitUntil = &when
		_ = SaveState(ctx, st)
		_ = yieldToQueue(ctx, "retry_"+def.Name, st.LastProgress)
		return true
	}
	_ = SaveState(ctx, st)
	ctx.Fail(def.Name, err)
	return true
}

// -------------------- safety + validation --------------------

func validateStages(stages []Stage) error {
	seen := map[string]bool{}
	lastEnd := -1
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage missing Name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Run == nil {
			return fmt.Errorf("stage %q: Run is nil", s.Name)
		}
		if s.StartPct < 0 || s.StartPct > 100 || s.EndPct < 0 || s.EndPct > 100 {
			return fmt.Errorf("stage %q: progress must be 0..100", s.Name)
		}
		if s.EndPct < s.StartPct {
			return fmt.Errorf("stage %q: EndPct must be >= StartPct", s.Name)
		}
		if s.EndPct < lastEnd {
			return fmt.Errorf("stage %q: EndPct must be >= previous stage EndPct", s.Name)
		}
		lastEnd = s.EndPct
	}
	return nil
}

func safeRun(def Stage, ctx *jobrt.Context, st *ChainState) (outs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			outs, err = nil, fmt.Errorf("stage %q panicked: %v", def.Name, r)
		}
	}()
	run := func() (map[string]any, error) { return def.Run(ctx, st) }
	if def.Timeout <= 0 {
		return run()
	}
	tctx, cancel := context.WithTimeout(ctx.Ctx, def.Timeout)
	defer cancel()
	tmp := *ctx
	tmp.Ctx = tctx
	type out struct {
		m map[string]any
		e error
	}
	ch := make(chan out, 1)
	go func() {
		m, e := def.Run(&tmp, st)
		ch <- out{m: m, e: e}
	}()
	select {
	case <-tctx.Done():
		return nil, fmt.Errorf("stage %q timed out: %w", def.Name, tctx.Err())
	case o := <-ch:
		return o.m, o.e
	}
}

// -------------------- progress + timestamps --------------------

func setProgress(ctx *jobrt.Context, st *ChainState, stage string, pct int, msg string) {
	if ctx == nil || st == nil {
		return
	}
	if pct < st.LastProgress {
		pct = st.LastProgress
	} else {
		st.LastProgress = pct
	}
	ctx.Progress(stage, pct, msg)
}

func markStarted(ss *StageState) {
	if ss == nil || ss.StartedAt != nil {
		return
	}
	now := time.Now().UTC()
	ss.StartedAt = &now
}

func markFinished(ss *StageState, lastErr string) {
	if ss == nil {
		return
	}
	now := time.Now().UTC()
	ss.FinishedAt = &now
	if strings.TrimSpace(lastErr) != "" {
		ss.LastError = lastErr
	}
}

func mergeOutputs(ss *StageState, outs map[string]any) {
	if ss == nil || outs == nil {
		return
	}
	if ss.Outputs == nil {
		ss.Outputs = map[string]any{}
	}
	for k, v := range outs {
		ss.Outputs[k] = v
	}
}

// -------------------- retry/backoff --------------------

func shouldRetry(r RetryPolicy, attempts int, err error) bool {
	if r.MaxAttempts <= 0 || attempts >= r.MaxAttempts {
		return false
	}
	if r.Retryable == nil {
		return true
	}
	return r.Retryable(err)
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 1 * time.Second
	}
	if maxB <= 0 {
		maxB = 30 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

// -------------------- misc --------------------

func clampDuration(d, minD, maxD time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if minD > 0 && d < minD {
		return minD
	}
	if maxD > 0 && d > maxD {
		return maxD
	}
	return d
}

func msgOr(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
