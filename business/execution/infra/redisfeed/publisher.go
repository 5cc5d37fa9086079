// Package redisfeed publishes execution results and opportunity snapshots to Redis.
package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

// streamMaxLen trims the executions stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// Config holds connection and key settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	// SnapshotTTL expires the published snapshot; zero keeps it until replaced.
	SnapshotTTL time.Duration
}

// Publisher appends results to a stream, announces them on a channel and
// keeps the latest opportunity snapshot under one key.
type Publisher struct {
	rdb    *redis.Client
	keys   keys
	ttl    time.Duration
	logger logger.LoggerInterface
}

type keys struct {
	stream   string
	channel  string
	snapshot string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = "flashloan"
	}
	return keys{
		stream:   prefix + ":executions",
		channel:  prefix + ":executions:live",
		snapshot: prefix + ":opportunities",
	}
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg Config, log logger.LoggerInterface) (*Publisher, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisfeed: ping %s: %w", cfg.Addr, err)
	}
	return &Publisher{rdb: rdb, keys: newKeys(cfg.Prefix), ttl: cfg.SnapshotTTL, logger: log}, nil
}

// Record appends r to the executions stream and publishes it live.
func (p *Publisher) Record(ctx context.Context, r domain.Result) error {
	payload, err := json.Marshal(newResultMessage(r))
	if err != nil {
		return apperror.New(apperror.CodeFeedPublishFailed, apperror.WithCause(err))
	}

	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: p.keys.stream,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]any{"id": r.ID, "payload": payload},
		})
		pipe.Publish(ctx, p.keys.channel, payload)
		return nil
	})
	if err != nil {
		return apperror.New(apperror.CodeFeedPublishFailed,
			apperror.WithContextf("execution %s", r.ID), apperror.WithCause(err))
	}
	return nil
}

// PublishSnapshot stores snap as the current opportunity list. Failures are
// logged; the feed is best effort.
func (p *Publisher) PublishSnapshot(ctx context.Context, snap *oppDomain.Snapshot) {
	payload, err := json.Marshal(newSnapshotMessage(snap))
	if err != nil {
		p.logger.Warn(ctx, "encode snapshot for feed", "error", err)
		return
	}
	if err := p.rdb.Set(ctx, p.keys.snapshot, payload, p.ttl).Err(); err != nil {
		p.logger.Warn(ctx, "publish snapshot failed", "key", p.keys.snapshot, "error", err)
	}
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
