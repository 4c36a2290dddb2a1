/**
 * PostgreSQL Client for the orientation worker
 *
 * Handles job persistence and the audit trail of runs and the pages that
 * were flagged for manual verification.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/lib/pq"
)

// PostgresClient handles database operations
type PostgresClient struct {
	db *sql.DB
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID        string
	InputPath    string
	Status       string
	Progress     int
	RunID        string
	ErrorCode    string
	ErrorMessage string
	Metadata     map[string]interface{}
}

// RunRecord is one processed document.
type RunRecord struct {
	ID           string
	JobID        string
	InputPath    string
	OutputPath   string
	PageCount    int
	ChangedPages int
	Threshold    float64
	StartedAt    time.Time
	Duration     time.Duration
	Pages        []LowConfidencePage
}

// LowConfidencePage is a page the user was asked to verify.
type LowConfidencePage struct {
	Page                int
	PrimaryRotation     int
	UpdownRotation      int
	TotalRotation       int
	Confidence          float64
	PrimaryConfidence   float64
	Provenance          string
	FallbackUsed        bool
	PoseUsed            bool
	DoubleCheckReverted bool
}

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS orient;

CREATE TABLE IF NOT EXISTS orient.runs (
	id             UUID PRIMARY KEY,
	job_id         TEXT,
	input_path     TEXT NOT NULL,
	output_path    TEXT NOT NULL,
	page_count     INTEGER NOT NULL,
	changed_pages  INTEGER NOT NULL,
	threshold      NUMERIC(10,4) NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS orient.low_confidence_pages (
	run_id                UUID NOT NULL REFERENCES orient.runs(id) ON DELETE CASCADE,
	page                  INTEGER NOT NULL,
	primary_rotation      INTEGER NOT NULL,
	updown_rotation       INTEGER NOT NULL,
	total_rotation        INTEGER NOT NULL,
	confidence            NUMERIC(10,4) NOT NULL,
	primary_confidence    NUMERIC(10,4) NOT NULL,
	provenance            TEXT NOT NULL,
	fallback_used         BOOLEAN NOT NULL,
	pose_used             BOOLEAN NOT NULL,
	double_check_reverted BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, page)
);

CREATE TABLE IF NOT EXISTS orient.jobs (
	id            TEXT PRIMARY KEY,
	input_path    TEXT,
	status        TEXT NOT NULL,
	progress      INTEGER NOT NULL DEFAULT 0,
	run_id        UUID,
	error_code    TEXT,
	error_message TEXT,
	metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// sanitizeConfidence rounds confidence to 4 decimal places so it fits
// NUMERIC(10,4) exactly. OSD confidences are unbounded above; only negatives
// and non-finite values are clamped.
func sanitizeConfidence(confidence float64) float64 {
	if confidence < 0 || math.IsNaN(confidence) {
		return 0
	}
	if math.IsInf(confidence, 1) || confidence > 999999 {
		return 999999
	}
	return math.Round(confidence*10000) / 10000
}

// NewPostgresClient creates a new PostgreSQL client
func NewPostgresClient(databaseURL string) (*PostgresClient, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// Connect to database
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{db: db}, nil
}

// EnsureSchema creates the orient schema and tables if missing
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpdateJobStatus upserts a job row
func (p *PostgresClient) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	// Convert metadata to JSONB
	if update.Metadata == nil {
		update.Metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(update.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO orient.jobs (
			id, input_path, status, progress, run_id,
			error_code, error_message, metadata, created_at, updated_at
		) VALUES (
			$1, NULLIF($2, ''), $3, $4,
			CASE WHEN $5 = '' THEN NULL ELSE $5::uuid END,
			NULLIF($6, ''), NULLIF($7, ''), $8::jsonb, NOW(), NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			input_path = COALESCE(EXCLUDED.input_path, orient.jobs.input_path),
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			run_id = COALESCE(EXCLUDED.run_id, orient.jobs.run_id),
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			metadata = orient.jobs.metadata || EXCLUDED.metadata,
			updated_at = NOW()
	`

	_, err = p.db.ExecContext(ctx, query,
		update.JobID,        // $1
		update.InputPath,    // $2
		update.Status,       // $3
		update.Progress,     // $4
		update.RunID,        // $5
		update.ErrorCode,    // $6
		update.ErrorMessage, // $7
		metadataJSON,        // $8
	)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}
	return nil
}

// InsertRun stores a run and its flagged pages in one transaction. Pages are
// streamed with COPY.
func (p *PostgresClient) InsertRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orient.runs (
			id, job_id, input_path, output_path, page_count, changed_pages,
			threshold, started_at, duration_ms
		) VALUES ($1::uuid, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
	`,
		run.ID,
		run.JobID,
		run.InputPath,
		run.OutputPath,
		run.PageCount,
		run.ChangedPages,
		sanitizeConfidence(run.Threshold),
		run.StartedAt,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if len(run.Pages) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema("orient", "low_confidence_pages",
			"run_id", "page", "primary_rotation", "updown_rotation", "total_rotation",
			"confidence", "primary_confidence", "provenance",
			"fallback_used", "pose_used", "double_check_reverted",
		))
		if err != nil {
			return fmt.Errorf("failed to prepare page copy: %w", err)
		}

		for _, pg := range run.Pages {
			if _, err := stmt.ExecContext(ctx,
				run.ID, pg.Page, pg.PrimaryRotation, pg.UpdownRotation, pg.TotalRotation,
				sanitizeConfidence(pg.Confidence), sanitizeConfidence(pg.PrimaryConfidence), pg.Provenance,
				pg.FallbackUsed, pg.PoseUsed, pg.DoubleCheckReverted,
			); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to copy page %d: %w", pg.Page, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			stmt.Close()
			return fmt.Errorf("failed to flush page copy: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("failed to close page copy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run and its flagged pages
func (p *PostgresClient) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run := &RunRecord{ID: runID}
	var jobID sql.NullString
	var durationMs int64

	err := p.db.QueryRowContext(ctx, `
		SELECT job_id, input_path, output_path, page_count, changed_pages,
		       threshold, started_at, duration_ms
		FROM orient.runs WHERE id = $1::uuid
	`, runID).Scan(
		&jobID, &run.InputPath, &run.OutputPath, &run.PageCount, &run.ChangedPages,
		&run.Threshold, &run.StartedAt, &durationMs,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run.JobID = jobID.String
	run.Duration = time.Duration(durationMs) * time.Millisecond

	rows, err := p.db.QueryContext(ctx, `
		SELECT page, primary_rotation, updown_rotation, total_rotation,
		       confidence, primary_confidence, provenance,
		       fallback_used, pose_used, double_check_reverted
		FROM orient.low_confidence_pages WHERE run_id = $1::uuid ORDER BY page
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages of run %s: %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var pg LowConfidencePage
		if err := rows.Scan(
			&pg.Page, &pg.PrimaryRotation, &pg.UpdownRotation, &pg.TotalRotation,
			&pg.Confidence, &pg.PrimaryConfidence, &pg.Provenance,
			&pg.FallbackUsed, &pg.PoseUsed, &pg.DoubleCheckReverted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		run.Pages = append(run.Pages, pg)
	}
	return run, rows.Err()
}

// Ping checks database connectivity
func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *PostgresClient) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (p *PostgresClient) GetStats() sql.DBStats {
	return p.db.Stats()
}
