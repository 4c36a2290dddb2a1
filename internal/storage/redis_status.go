package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Job states tracked in Redis and PostgreSQL
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// RedisStatus keeps live job state under <prefix>:processing|completed|failed
// sets, <prefix>:results and <prefix>:errors hashes, and publishes every
// transition on <prefix>:events.
type RedisStatus struct {
	client *redis.Client
	prefix string
}

// NewRedisStatus connects to redisURL
func NewRedisStatus(redisURL, prefix string) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStatus(client, prefix), nil
}

func newRedisStatus(client *redis.Client, prefix string) *RedisStatus {
	return &RedisStatus{client: client, prefix: prefix}
}

func (r *RedisStatus) key(suffix string) string {
	return fmt.Sprintf("%s:%s", r.prefix, suffix)
}

// UpdateJobStatus moves jobID between status sets. result is stored as JSON
// under results (completed) or errors (failed) when non-nil.
func (r *RedisStatus) UpdateJobStatus(ctx context.Context, jobID string, status string, result interface{}) error {
	pipe := r.client.TxPipeline()

	switch status {
	case StatusProcessing:
		pipe.SAdd(ctx, r.key("processing"), jobID)
	case StatusCompleted:
		pipe.SRem(ctx, r.key("processing"), jobID)
		pipe.SAdd(ctx, r.key("completed"), jobID)
		if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to marshal result: %w", err)
			}
			pipe.HSet(ctx, r.key("results"), jobID, data)
		}
	case StatusFailed:
		pipe.SRem(ctx, r.key("processing"), jobID)
		pipe.SAdd(ctx, r.key("failed"), jobID)
		if result != nil {
			data, err := json.Marshal(result)
			if err != nil {
				return fmt.Errorf("failed to marshal error: %w", err)
			}
			pipe.HSet(ctx, r.key("errors"), jobID, data)
		}
	}

	event, _ := json.Marshal(map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	pipe.Publish(ctx, r.key("events"), event)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update job %s in Redis: %w", jobID, err)
	}
	return nil
}

// PublishProgress announces a decided page
func (r *RedisStatus) PublishProgress(ctx context.Context, jobID string, page, total int) error {
	event, _ := json.Marshal(map[string]interface{}{
		"event":     "job:progress",
		"jobId":     jobID,
		"page":      page,
		"total":     total,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	return r.client.Publish(ctx, r.key("events"), event).Err()
}

// GetResult returns the stored JSON result of a completed job
func (r *RedisStatus) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	data, err := r.client.HGet(ctx, r.key("results"), jobID).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no result for job %s", jobID)
	}
	return data, err
}

// GetStats returns job counts per status
func (r *RedisStatus) GetStats(ctx context.Context) (map[string]int64, error) {
	stats := make(map[string]int64, 3)
	for _, s := range []string{StatusProcessing, StatusCompleted, StatusFailed} {
		n, err := r.client.SCard(ctx, r.key(s)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count %s jobs: %w", s, err)
		}
		stats[s] = n
	}
	return stats, nil
}

// Subscribe returns the event channel subscription
func (r *RedisStatus) Subscribe(ctx context.Context) *redis.PubSub {
	return r.client.Subscribe(ctx, r.key("events"))
}

// Close closes the Redis connection
func (r *RedisStatus) Close() error {
	return r.client.Close()
}
