package processor

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextProbeBoundsStuckRecognitions(t *testing.T) {
	probe := NewTextProbe(&TextProbeConfig{Languages: "eng", Timeout: 20 * time.Millisecond, MaxInFlight: 1})

	release := make(chan struct{})
	var started int32
	probe.run = func([]byte) (bool, error) {
		atomic.AddInt32(&started, 1)
		<-release
		return true, nil
	}

	img := image.NewGray(image.Rect(0, 0, 4, 4))
	assert.False(t, probe.HasText(context.Background(), img), "timed out")
	assert.False(t, probe.HasText(context.Background(), img), "no free slot")
	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, len(probe.inflight))

	close(release)
	require.Eventually(t, func() bool { return len(probe.inflight) == 0 }, time.Second, 5*time.Millisecond)

	assert.True(t, probe.HasText(context.Background(), img))
	assert.Equal(t, int32(2), atomic.LoadInt32(&started))
}

func TestTextProbeErrorMeansNoText(t *testing.T) {
	probe := NewTextProbe(&TextProbeConfig{Timeout: time.Second})
	assert.Equal(t, DefaultMaxInFlightProbes, cap(probe.inflight))
	assert.Equal(t, []string{"eng"}, probe.languages)

	probe.run = func([]byte) (bool, error) { return false, fmt.Errorf("engine crashed") }
	assert.False(t, probe.HasText(context.Background(), image.NewGray(image.Rect(0, 0, 2, 2))))
}
