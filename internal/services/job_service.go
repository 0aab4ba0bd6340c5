package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/temporal"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/papervault/papervault-backend/internal/clients/redis"
	jobrepos "github.com/papervault/papervault-backend/internal/data/repos/jobs"
	types "github.com/papervault/papervault-backend/internal/domain"
	"github.com/papervault/papervault-backend/internal/platform/dbctx"
	"github.com/papervault/papervault-backend/internal/platform/logger"
	"github.com/papervault/papervault-backend/internal/temporalx"
	"github.com/papervault/papervault-backend/internal/temporalx/jobrun"
)

// ChainDispatcher enqueues job_run rows for file processing chains and hands
// them to a driver. With Temporal configured, Dispatch starts a job_run
// workflow; without it, Dispatch is a no-op and the DB polling worker picks
// the queued row up on its next tick.
type ChainDispatcher interface {
	EnqueueFileChain(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, meta *redisclient.FileMeta) (*types.JobRun, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	HasRunnableForFile(dbc dbctx.Context, ownerUserID uuid.UUID, fileID uuid.UUID) (bool, error)
}

type chainDispatcher struct {
	log      *logger.Logger
	db       *gorm.DB
	repo     jobrepos.JobRunRepo
	metadata redisclient.JobMetadataStore
	notify   redisclient.JobNotifier
	temporal temporalsdkclient.Client
}

func NewChainDispatcher(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo jobrepos.JobRunRepo,
	metadata redisclient.JobMetadataStore,
	notify redisclient.JobNotifier,
	temporalClient temporalsdkclient.Client,
) ChainDispatcher {
	return &chainDispatcher{
		log:      baseLog.With("service", "ChainDispatcher"),
		db:       db,
		repo:     repo,
		metadata: metadata,
		notify:   notify,
		temporal: temporalClient,
	}
}

// EnqueueFileChain persists a queued job_run whose payload is the FileMeta
// itself and mirrors the meta into the Redis "file" section for fast stage
// access. The payload is the durable copy; the Redis section can expire.
// When dbc.Tx is a live transaction, dispatch is deferred to the caller so
// the workflow never observes an uncommitted row.
func (s *chainDispatcher) EnqueueFileChain(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, meta *redisclient.FileMeta) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if strings.TrimSpace(jobType) == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if meta == nil || meta.FileID == uuid.Nil {
		return nil, fmt.Errorf("missing file meta")
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}

	payloadJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	now := time.Now().UTC()
	entityID := meta.FileID
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  "file",
		EntityID:    &entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Progress:    0,
		Attempts:    0,
		Message:     "Queued",
		Payload:     datatypes.JSON(payloadJSON),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.metadata != nil {
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := s.metadata.Put(ctx, job.ID, redisclient.SectionFile, meta); err != nil {
			s.log.Warn("File metadata write failed; stages will fall back to payload", "job_id", job.ID, "error", err)
		}
	}

	if s.notify != nil {
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		_ = s.notify.Notify(ctx, redisclient.JobEvent{
			JobID:   job.ID,
			OwnerID: ownerUserID,
			Status:  job.Status,
			Stage:   job.Stage,
			Message: job.Message,
		})
	}

	// gorm.DB pointers are cloned by WithContext/Session, so pointer
	// comparison cannot detect a transaction; probe the ConnPool instead.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

func (s *chainDispatcher) HasRunnableForFile(dbc dbctx.Context, ownerUserID uuid.UUID, fileID uuid.UUID) (bool, error) {
	return s.repo.HasRunnableForEntity(dbc, ownerUserID, "file", fileID)
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	if _, ok := db.Statement.ConnPool.(*sql.Tx); ok {
		return true
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

// Dispatch starts the Temporal workflow that drives the job, or does nothing
// when Temporal is not configured. A dispatch failure is recorded on the row
// so the chain never silently stalls in "queued".
func (s *chainDispatcher) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	if s.temporal == nil {
		s.log.Debug("Temporal not configured; polling worker will claim job", "job_id", jobID)
		return nil
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.startWorkflow(ctx, jobID)
	if err == nil {
		return nil
	}
	if _, ok := err.(*serviceerror.WorkflowExecutionAlreadyStarted); ok {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if s.notify != nil {
		if rows, rerr := s.repo.GetByIDs(dbctx.Context{Ctx: ctx, Tx: s.db}, []uuid.UUID{jobID}); rerr == nil && len(rows) > 0 && rows[0] != nil {
			j := rows[0]
			_ = s.notify.Notify(ctx, redisclient.JobEvent{
				JobID:   j.ID,
				OwnerID: j.OwnerUserID,
				Status:  j.Status,
				Stage:   "dispatch",
				Error:   err.Error(),
			})
		}
	}
	return fmt.Errorf("start temporal workflow: %w", err)
}

func (s *chainDispatcher) startWorkflow(ctx context.Context, jobID uuid.UUID) error {
	cfg := temporalx.LoadConfig()
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             cfg.TaskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, jobrun.WorkflowName)
	return err
}
