package errors

import (
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingErrorWrapsCause(t *testing.T) {
	err := NewSaveFailedError("/out/a_rot.pdf", "/out/a_rot_new.pdf", fs.ErrPermission)
	wrapped := fmt.Errorf("process a.pdf: %w", err)

	assert.ErrorIs(t, wrapped, fs.ErrPermission)
	assert.True(t, HasCode(wrapped, ErrorSaveFailed))
	assert.False(t, HasCode(wrapped, ErrorStorageFailed))
	assert.Contains(t, err.Error(), "SAVE_FAILED")
	assert.Contains(t, err.Error(), "caused by")
}

func TestToMap(t *testing.T) {
	err := NewProcessingTimeoutError("job-1", 2*time.Minute, fmt.Errorf("deadline"))
	m := err.ToMap()

	require.Equal(t, "PROCESSING_TIMEOUT", m["error_code"])
	assert.Equal(t, "job-1", m["job_id"])
	assert.Equal(t, "2m0s", m["timeout_duration"])
	assert.Equal(t, "deadline", m["cause"])
}

func TestOutputNameExhaustedHasNoCause(t *testing.T) {
	err := NewOutputNameExhaustedError("doc.pdf", 1000)

	assert.NotContains(t, err.Error(), "caused by")
	assert.Equal(t, 1000, err.ToMap()["attempts"])
}
