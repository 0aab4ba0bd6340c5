package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/papervault/papervault-backend/internal/platform/envutil"
	"github.com/papervault/papervault-backend/internal/platform/logger"
)

// Metadata sections stages read and write under one job. Keys expire on
// their own; delete_working_files also forgets them explicitly once the
// chain is done with them.
const (
	SectionFile     = "file"
	SectionExtract  = "extract"
	SectionPipeline = "pipeline"
)

// JobMetadataStore is the transient scratch space shared by the stages of
// one job chain. Values are JSON documents keyed by (job id, section).
type JobMetadataStore interface {
	Put(ctx context.Context, jobID uuid.UUID, section string, value any) error
	Get(ctx context.Context, jobID uuid.UUID, section string, out any) (bool, error)
	Forget(ctx context.Context, jobID uuid.UUID, sections ...string) error
	Close() error
}

type jobMetadataStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewJobMetadataStore(baseLog *logger.Logger) (JobMetadataStore, error) {
	addr := envutil.Str("REDIS_ADDR", "")
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.Str("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := envutil.DurationSeconds("JOB_METADATA_TTL_SECONDS", time.Hour)

	return &jobMetadataStore{
		log: baseLog.With("service", "JobMetadataStore"),
		rdb: rdb,
		ttl: ttl,
	}, nil
}

// NewJobMetadataStoreWithClient wires an existing client, used by tests.
func NewJobMetadataStoreWithClient(baseLog *logger.Logger, rdb *goredis.Client, ttl time.Duration) JobMetadataStore {
	return &jobMetadataStore{
		log: baseLog.With("service", "JobMetadataStore"),
		rdb: rdb,
		ttl: ttl,
	}
}

func metadataKey(jobID uuid.UUID, section string) string {
	return fmt.Sprintf("jobmeta:%s:%s", jobID, section)
}

func (s *jobMetadataStore) Put(ctx context.Context, jobID uuid.UUID, section string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}
	return s.rdb.Set(ctx, metadataKey(jobID, section), raw, s.ttl).Err()
}

func (s *jobMetadataStore) Get(ctx context.Context, jobID uuid.UUID, section string, out any) (bool, error) {
	raw, err := s.rdb.Get(ctx, metadataKey(jobID, section)).Bytes()
	if err == goredis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal job metadata: %w", err)
	}
	return true, nil
}

func (s *jobMetadataStore) Forget(ctx context.Context, jobID uuid.UUID, sections ...string) error {
	if len(sections) == 0 {
		sections = []string{SectionFile, SectionExtract, SectionPipeline}
	}
	keys := make([]string, 0, len(sections))
	for _, section := range sections {
		keys = append(keys, metadataKey(jobID, section))
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *jobMetadataStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
