/**
 * Storage Manager for the orientation worker
 *
 * Coordinates PostgreSQL (audit + durable job rows) and Redis (live status).
 * Either backend may be absent; the manager then only writes to the other.
 */

package storage

import (
	"context"
	"fmt"

	"github.com/cshinei1990/PDF-rotate/internal/errors"
	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/processor"
)

// StorageManager coordinates PostgreSQL and Redis operations
type StorageManager struct {
	postgres *PostgresClient
	redis    *RedisStatus
	logger   *logging.Logger
}

// NewStorageManager connects to whichever backends are configured. Empty
// URLs disable the corresponding backend.
func NewStorageManager(ctx context.Context, postgresURL, redisURL, prefix string) (*StorageManager, error) {
	sm := &StorageManager{logger: logging.NewLogger("Storage")}

	if postgresURL != "" {
		pg, err := NewPostgresClient(postgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		sm.postgres = pg
	}

	if redisURL != "" {
		rs, err := NewRedisStatus(redisURL, prefix)
		if err != nil {
			sm.Close() // Cleanup on failure
			return nil, fmt.Errorf("failed to initialize Redis status: %w", err)
		}
		sm.redis = rs
	}

	return sm, nil
}

// StoreResult records a finished run in the audit store
func (sm *StorageManager) StoreResult(ctx context.Context, res *processor.ProcessResult) error {
	if sm.postgres == nil {
		return nil
	}
	if err := sm.postgres.InsertRun(ctx, RunFromResult(res)); err != nil {
		return errors.NewStorageFailedError(res.JobID, err)
	}
	return nil
}

// UpdateJobStatus writes job state to Redis and PostgreSQL. Failures are
// logged; job bookkeeping never fails a document.
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate, result interface{}) {
	if sm.redis != nil {
		if err := sm.redis.UpdateJobStatus(ctx, update.JobID, update.Status, result); err != nil {
			sm.logger.Warn("Failed to update Redis job status", "job_id", update.JobID, "error", err)
		}
	}
	if sm.postgres != nil {
		if err := sm.postgres.UpdateJobStatus(ctx, update); err != nil {
			sm.logger.Warn("Failed to update PostgreSQL job status", "job_id", update.JobID, "error", err)
		}
	}
}

// PublishProgress forwards a page event to Redis
func (sm *StorageManager) PublishProgress(ctx context.Context, jobID string, page, total int) {
	if sm.redis == nil {
		return
	}
	if err := sm.redis.PublishProgress(ctx, jobID, page, total); err != nil {
		sm.logger.Debug("Failed to publish progress", "job_id", jobID, "error", err)
	}
}

// Close closes both backends
func (sm *StorageManager) Close() error {
	var firstErr error
	if sm.redis != nil {
		if err := sm.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if sm.postgres != nil {
		if err := sm.postgres.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RunFromResult flattens a processing result into its audit record
func RunFromResult(res *processor.ProcessResult) *RunRecord {
	run := &RunRecord{
		ID:           res.RunID,
		JobID:        res.JobID,
		InputPath:    res.InputPath,
		OutputPath:   res.OutputPath,
		PageCount:    res.PageCount,
		ChangedPages: res.ChangedPages,
		Threshold:    res.Threshold,
		StartedAt:    res.StartedAt,
		Duration:     res.Duration,
		Pages:        make([]LowConfidencePage, 0, len(res.LowConfidence)),
	}
	for _, e := range res.LowConfidence {
		run.Pages = append(run.Pages, LowConfidencePage{
			Page:                e.Page,
			PrimaryRotation:     e.PrimaryRotation,
			UpdownRotation:      e.UpdownRotation,
			TotalRotation:       e.TotalRotation,
			Confidence:          e.Confidence,
			PrimaryConfidence:   e.PrimaryConfidence,
			Provenance:          e.Provenance,
			FallbackUsed:        e.FallbackUsed,
			PoseUsed:            e.PoseUsed,
			DoubleCheckReverted: e.DoubleCheckReverted,
		})
	}
	return run
}
