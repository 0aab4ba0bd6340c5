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

// JobEvent is one progress notification published while a chain runs.
type JobEvent struct {
	JobID    uuid.UUID `json:"job_id"`
	OwnerID  uuid.UUID `json:"owner_id"`
	Status   string    `json:"status"`
	Stage    string    `json:"stage,omitempty"`
	Progress int       `json:"progress"`
	Message  string    `json:"message,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type JobNotifier interface {
	Notify(ctx context.Context, ev JobEvent) error
	Close() error
}

type jobNotifier struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func NewJobNotifier(baseLog *logger.Logger) (JobNotifier, error) {
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

	return &jobNotifier{
		log:     baseLog.With("service", "JobNotifier"),
		rdb:     rdb,
		channel: envutil.Str("JOB_EVENTS_CHANNEL", "job_events"),
	}, nil
}

func NewJobNotifierWithClient(baseLog *logger.Logger, rdb *goredis.Client, channel string) JobNotifier {
	return &jobNotifier{
		log:     baseLog.With("service", "JobNotifier"),
		rdb:     rdb,
		channel: channel,
	}
}

func (n *jobNotifier) Notify(ctx context.Context, ev JobEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdb.Publish(ctx, n.channel, raw).Err()
}

func (n *jobNotifier) Close() error {
	if n == nil || n.rdb == nil {
		return nil
	}
	return n.rdb.Close()
}
