/**
 * Queue Consumer for the orientation worker
 *
 * Consumes orient:document tasks from Redis and corrects each document in
 * place on the shared filesystem. Uses Asynq for queue management.
 */

package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/cshinei1990/PDF-rotate/internal/errors"
	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/processor"
	"github.com/cshinei1990/PDF-rotate/internal/storage"
)

// TaskTypeOrientDocument is the asynq task type handled by the consumer
const TaskTypeOrientDocument = "orient:document"

// JobData is the task payload
type JobData struct {
	JobID      string                 `json:"jobId"`
	InputPath  string                 `json:"inputPath"`
	OutputPath string                 `json:"outputPath,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StatusTracker receives job lifecycle updates. storage.StorageManager
// implements it.
type StatusTracker interface {
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate, result interface{})
	PublishProgress(ctx context.Context, jobID string, page, total int)
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.DocumentProcessorInterface
	tracker   StatusTracker
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	Tracker           StatusTracker // optional
	ProcessingTimeout time.Duration // default: 10 minutes
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("QueueConsumer")

	// Create Asynq server for task processing
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error",
					"type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
			Logger: asynqLogger{logger: logging.NewLogger("asynq")},
		},
	)

	consumer := newConsumer(cfg, logger)
	consumer.server = server
	return consumer, nil
}

func newConsumer(cfg *ConsumerConfig, logger *logging.Logger) *Consumer {
	c := &Consumer{
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		tracker:   cfg.Tracker,
		config:    cfg,
		logger:    logger,
	}
	if c.tracker == nil {
		c.tracker = noopTracker{}
	}

	// Register task handler
	c.mux.HandleFunc(TaskTypeOrientDocument, c.handleOrientDocument)
	return c
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer...")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// handleOrientDocument processes one orient:document task
func (c *Consumer) handleOrientDocument(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	// Parse job data
	var jobData JobData
	if err := json.Unmarshal(task.Payload(), &jobData); err != nil {
		return fmt.Errorf("%w: %w", errors.NewInvalidJobError("", err), asynq.SkipRetry)
	}
	if jobData.JobID == "" || jobData.InputPath == "" {
		err := errors.NewInvalidJobError(jobData.JobID, fmt.Errorf("jobId and inputPath are required"))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := c.logger.With("job_id", jobData.JobID)
	logger.Info("Processing document", "file", jobData.InputPath)

	c.tracker.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:     jobData.JobID,
		InputPath: jobData.InputPath,
		Status:    storage.StatusProcessing,
		Metadata:  jobData.Metadata,
	}, nil)

	timeout := 10 * time.Minute
	if c.config.ProcessingTimeout > 0 {
		timeout = c.config.ProcessingTimeout
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessDocument(processCtx, &processor.ProcessRequest{
		JobID:      jobData.JobID,
		InputPath:  jobData.InputPath,
		OutputPath: jobData.OutputPath,
		Progress: func(page, total int) {
			c.tracker.PublishProgress(ctx, jobData.JobID, page, total)
		},
	})

	duration := time.Since(startTime)

	if err != nil {
		// Check if error was due to timeout
		if processCtx.Err() == context.DeadlineExceeded {
			logger.Error("Processing timed out", "duration", duration, "timeout", timeout)

			timeoutErr := errors.NewProcessingTimeoutError(jobData.JobID, timeout, err)
			c.fail(ctx, jobData, timeoutErr)
			return fmt.Errorf("processing timeout: %w", timeoutErr)
		}

		logger.Error("Processing failed", "duration", duration, "error", err)
		c.fail(ctx, jobData, err)

		if permanent(err) {
			return fmt.Errorf("document processing failed: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("document processing failed: %w", err)
	}

	logger.Info("Processing completed",
		"duration", duration,
		"saved", result.OutputPath,
		"changed_pages", result.ChangedPages,
		"low_confidence", len(result.LowConfidence))

	c.tracker.UpdateJobStatus(ctx, &storage.JobUpdate{
		JobID:     jobData.JobID,
		InputPath: jobData.InputPath,
		Status:    storage.StatusCompleted,
		Progress:  100,
		RunID:     result.RunID,
	}, map[string]interface{}{
		"runId":          result.RunID,
		"outputPath":     result.OutputPath,
		"pageCount":      result.PageCount,
		"changedPages":   result.ChangedPages,
		"lowConfidence":  result.LowConfidence,
		"processingTime": duration.Milliseconds(),
	})

	return nil
}

func (c *Consumer) fail(ctx context.Context, jobData JobData, err error) {
	update := &storage.JobUpdate{
		JobID:        jobData.JobID,
		InputPath:    jobData.InputPath,
		Status:       storage.StatusFailed,
		Progress:     100,
		ErrorMessage: err.Error(),
	}
	detail := map[string]interface{}{"error": err.Error()}

	var pe *errors.ProcessingError
	if stderrors.As(err, &pe) {
		update.ErrorCode = string(pe.Code)
		detail = pe.ToMap()
	}
	c.tracker.UpdateJobStatus(ctx, update, detail)
}

// permanent reports errors that will not change on retry
func permanent(err error) bool {
	return errors.HasCode(err, errors.ErrorDocumentOpen) ||
		errors.HasCode(err, errors.ErrorOutputNameExhausted) ||
		stderrors.Is(err, os.ErrNotExist)
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"timeout":     c.config.ProcessingTimeout.String(),
	}
}

type noopTracker struct{}

func (noopTracker) UpdateJobStatus(context.Context, *storage.JobUpdate, interface{}) {}
func (noopTracker) PublishProgress(context.Context, string, int, int)               {}

// asynqLogger routes asynq's internal logs through slog
type asynqLogger struct {
	logger *logging.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
