package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	jobrepos "github.com/papervault/papervault-backend/internal/data/repos/jobs"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
)

/*
The execution contract between the job system and all business code.
runtime.Context is a capability-scoped execution handle for a single job run.
It wraps:
	- The database handle,
	- The mutable job_run row,
	- The notification side-effects,
	- And the only sanctioned ways to report progress or terminate execution
Pipelines never touch job_run directly. They go through this object.
*/

type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    jobrepos.JobRunRepo
	Notify  redisclient.JobNotifier
	payload map[string]any
}

// NewContext constructs a runtime.Context for a claimed job execution. It
// eagerly decodes the payload JSON so handlers can access inputs via
// Payload()/PayloadUUID(). A decode failure is non-fatal here; handlers
// validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo jobrepos.JobRunRepo, notify redisclient.JobNotifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload returns the decoded payload map. Never nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads a payload field by key and parses it as a UUID.
// Returns (uuid.Nil, false) when missing, nil, or not parseable.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadString reads a payload field by key as a trimmed string.
func (c *Context) PayloadString(key string) (string, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return "", false
	}
	s := fmt.Sprint(v)
	if s == "" {
		return "", false
	}
	return s, true
}

// PayloadBool reads a payload field by key as a bool.
func (c *Context) PayloadBool(key string) bool {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

/*
Update applies arbitrary field updates to the underlying job_run row in
storage, guarded so canceled jobs are never overwritten.
Intended use:
	- low-level state writes (chain state snapshots into result)
	- rare custom transitions not covered by Progress/Fail/Succeed
*/
func (c *Context) Update(updates map[string]any) error {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, []string{types.JobStatusCanceled}, toIfaceMap(updates))
	return err
}

/*
Progress publishes a non-terminal status update for this job run.
	- Persists stage/progress/message + heartbeat into job_run, guarded so
	  canceled jobs are not overwritten.
	- Updates the in-memory c.Job fields to match.
	- Emits a notifier event so clients can update promptly.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.JobStatusCanceled}, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
		// status remains whatever it is in DB ("running" after claim)
	}

	if c.Notify != nil && c.Job != nil {
		_ = c.Notify.Notify(ctx, redisclient.JobEvent{
			JobID:    c.Job.ID,
			OwnerID:  c.Job.OwnerUserID,
			Status:   types.JobStatusRunning,
			Stage:    stage,
			Progress: pct,
			Message:  msg,
		})
	}
}

/*
Fail marks this job run as terminally failed and records an error message.
	- Sets status=failed, stage=<stage>, error=<err>, last_error_at=now
	- Clears locked_at so other workers won't treat it as in-progress
	- Updates the in-memory job object and emits a failed notification
A canceled job is not overwritten; in that case nothing is emitted.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.JobStatusCanceled}, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"message":       "",
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		_ = c.Notify.Notify(ctx, redisclient.JobEvent{
			JobID:    c.Job.ID,
			OwnerID:  c.Job.OwnerUserID,
			Status:   types.JobStatusFailed,
			Stage:    stage,
			Progress: c.Job.Progress,
			Error:    msg,
		})
	}
}

/*
Succeed marks this job run as terminally succeeded and persists a result.
	- Sets status=succeeded, stage=<finalStage>, progress=100
	- Clears error/message, clears locked_at, updates heartbeat
	- Serializes result as JSON into job_run.result
	- Updates the in-memory job object and emits a done notification
A canceled job is not overwritten; in that case nothing is emitted.
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: ctx}, c.Job.ID, []string{types.JobStatusCanceled}, map[string]interface{}{
			"status":       types.JobStatusSucceeded,
			"stage":        finalStage,
			"progress":     100,
			"message":      "",
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = types.JobStatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		_ = c.Notify.Notify(ctx, redisclient.JobEvent{
			JobID:    c.Job.ID,
			OwnerID:  c.Job.OwnerUserID,
			Status:   types.JobStatusSucceeded,
			Stage:    finalStage,
			Progress: 100,
		})
	}
}

func toIfaceMap(m map[string]any) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
