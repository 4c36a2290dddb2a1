/**
 * Processor Types - Shared data structures for document processing
 *
 * Common types used by the local CLI, the queue consumer and the audit store
 */

package processor

import (
	"time"

	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

// ProgressFunc is called after each page is decided.
type ProgressFunc func(page, total int)

// ProcessRequest represents one document to correct
type ProcessRequest struct {
	JobID     string
	InputPath string
	// OutputPath overrides the <stem>_rot naming when set
	OutputPath string
	Progress   ProgressFunc
}

// PageResult is the outcome for a single page
type PageResult struct {
	Page        int
	PreExisting int
	Final       int
	Changed     bool
	Decision    orientation.Decision
}

// ProcessResult represents the processing result
type ProcessResult struct {
	RunID         string
	JobID         string
	InputPath     string
	OutputPath    string // where the document was actually written
	PageCount     int
	ChangedPages  int
	Threshold     float64
	Pages         []PageResult
	LowConfidence []orientation.ReportEntry
	StartedAt     time.Time
	Duration      time.Duration
}
