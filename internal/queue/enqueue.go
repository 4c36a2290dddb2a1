package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer submits orient:document tasks
type Enqueuer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
	timeout   time.Duration
}

// NewEnqueuer creates a task submitter for queueName
func NewEnqueuer(redisURL, queueName string, timeout time.Duration) (*Enqueuer, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Enqueuer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		maxRetry:  3,
		timeout:   timeout,
	}, nil
}

// NewOrientTask builds the task for one document. The path is made absolute
// so workers on the same filesystem resolve it identically.
func NewOrientTask(jobID, inputPath string) (*asynq.Task, error) {
	abs, err := filepath.Abs(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", inputPath, err)
	}
	payload, err := json.Marshal(JobData{JobID: jobID, InputPath: abs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job data: %w", err)
	}
	return asynq.NewTask(TaskTypeOrientDocument, payload), nil
}

// Enqueue submits inputPath and returns the new job ID
func (e *Enqueuer) Enqueue(ctx context.Context, inputPath string) (string, error) {
	jobID := uuid.NewString()
	task, err := NewOrientTask(jobID, inputPath)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(e.queueName),
		asynq.MaxRetry(e.maxRetry),
		asynq.TaskID(jobID),
	}
	if e.timeout > 0 {
		// Leave room for the consumer's own processing timeout to fire first
		opts = append(opts, asynq.Timeout(e.timeout+time.Minute))
	}

	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", inputPath, err)
	}
	return jobID, nil
}

// Close closes the underlying client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
