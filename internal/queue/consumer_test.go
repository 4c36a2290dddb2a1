package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cshinei1990/PDF-rotate/internal/errors"
	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/processor"
	"github.com/cshinei1990/PDF-rotate/internal/storage"
)

type fakeProcessor struct {
	result *processor.ProcessResult
	err    error
	block  bool
	got    *processor.ProcessRequest
}

func (f *fakeProcessor) ProcessDocument(ctx context.Context, req *processor.ProcessRequest) (*processor.ProcessResult, error) {
	f.got = req
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if req.Progress != nil {
		req.Progress(1, 2)
		req.Progress(2, 2)
	}
	return f.result, f.err
}

type update struct {
	status string
	code   string
	result interface{}
}

type fakeTracker struct {
	updates  []update
	progress []int
}

func (f *fakeTracker) UpdateJobStatus(_ context.Context, u *storage.JobUpdate, result interface{}) {
	f.updates = append(f.updates, update{status: u.Status, code: u.ErrorCode, result: result})
}

func (f *fakeTracker) PublishProgress(_ context.Context, _ string, page, _ int) {
	f.progress = append(f.progress, page)
}

func testConsumer(p processor.DocumentProcessorInterface, tr StatusTracker, timeout time.Duration) *Consumer {
	return newConsumer(&ConsumerConfig{
		QueueName:         "orient:test",
		Concurrency:       1,
		Processor:         p,
		Tracker:           tr,
		ProcessingTimeout: timeout,
	}, logging.NewLogger("test"))
}

func task(t *testing.T, data JobData) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	return asynq.NewTask(TaskTypeOrientDocument, payload)
}

func TestHandleOrientDocumentSuccess(t *testing.T) {
	fp := &fakeProcessor{result: &processor.ProcessResult{RunID: "run-1", OutputPath: "/d/a_rot.pdf", PageCount: 2, ChangedPages: 1}}
	tr := &fakeTracker{}
	c := testConsumer(fp, tr, time.Minute)

	err := c.handleOrientDocument(context.Background(), task(t, JobData{JobID: "j1", InputPath: "/d/a.pdf"}))
	require.NoError(t, err)

	assert.Equal(t, "/d/a.pdf", fp.got.InputPath)
	assert.Equal(t, []int{1, 2}, tr.progress)
	require.Len(t, tr.updates, 2)
	assert.Equal(t, storage.StatusProcessing, tr.updates[0].status)
	assert.Equal(t, storage.StatusCompleted, tr.updates[1].status)
	assert.Equal(t, "run-1", tr.updates[1].result.(map[string]interface{})["runId"])
}

func TestHandleOrientDocumentInvalidPayload(t *testing.T) {
	c := testConsumer(&fakeProcessor{}, nil, time.Minute)

	err := c.handleOrientDocument(context.Background(), asynq.NewTask(TaskTypeOrientDocument, []byte("{")))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.True(t, errors.HasCode(err, errors.ErrorInvalidJob))

	err = c.handleOrientDocument(context.Background(), task(t, JobData{JobID: "j2"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleOrientDocumentPermanentFailure(t *testing.T) {
	fp := &fakeProcessor{err: errors.NewDocumentOpenError("/d/a.pdf", fmt.Errorf("bad xref"))}
	tr := &fakeTracker{}
	c := testConsumer(fp, tr, time.Minute)

	err := c.handleOrientDocument(context.Background(), task(t, JobData{JobID: "j3", InputPath: "/d/a.pdf"}))
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	last := tr.updates[len(tr.updates)-1]
	assert.Equal(t, storage.StatusFailed, last.status)
	assert.Equal(t, string(errors.ErrorDocumentOpen), last.code)
}

func TestHandleOrientDocumentRetryableFailure(t *testing.T) {
	fp := &fakeProcessor{err: errors.NewRasterizeError("/d/a.pdf", 3, fmt.Errorf("killed"))}
	c := testConsumer(fp, &fakeTracker{}, time.Minute)

	err := c.handleOrientDocument(context.Background(), task(t, JobData{JobID: "j4", InputPath: "/d/a.pdf"}))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleOrientDocumentTimeout(t *testing.T) {
	tr := &fakeTracker{}
	c := testConsumer(&fakeProcessor{block: true}, tr, 20*time.Millisecond)

	err := c.handleOrientDocument(context.Background(), task(t, JobData{JobID: "j5", InputPath: "/d/a.pdf"}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrorProcessingTimeout))
	assert.Equal(t, string(errors.ErrorProcessingTimeout), tr.updates[len(tr.updates)-1].code)
}

func TestNewOrientTaskAbsolutePath(t *testing.T) {
	tk, err := NewOrientTask("j6", "rel/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeOrientDocument, tk.Type())

	var data JobData
	require.NoError(t, json.Unmarshal(tk.Payload(), &data))
	assert.True(t, filepath.IsAbs(data.InputPath))
	assert.Equal(t, "j6", data.JobID)
}

func TestNewConsumerValidates(t *testing.T) {
	_, err := NewConsumer(&ConsumerConfig{QueueName: "q", Processor: &fakeProcessor{}})
	assert.Error(t, err)

	_, err = NewConsumer(&ConsumerConfig{RedisURL: "redis://localhost:6379/0", Processor: &fakeProcessor{}})
	assert.Error(t, err)
}
