/**
 * Pose estimator backed by a landmark subprocess
 *
 * The process (scripts/pose_landmarks.py by default) reads length-prefixed
 * msgpack requests on stdin and answers each with one Landmarks frame on
 * stdout. Requests are serialized; any failure reports the pose as
 * unavailable and the process is restarted on the next call.
 */

package pose

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cshinei1990/PDF-rotate/internal/logging"
	"github.com/cshinei1990/PDF-rotate/internal/orientation"
)

const (
	// MinVisibility is the landmark visibility below which a pose is ignored.
	MinVisibility = 0.3

	// Confidence credited to a usable pose.
	Confidence = 10.0
)

// Decide turns landmarks into an upright/inverted signal. The figure is
// inverted when the nose sits below the midpoint of the hips.
func Decide(l Landmarks) orientation.PoseSignal {
	if !l.Found {
		return orientation.PoseSignal{}
	}
	for _, lm := range []Landmark{l.Nose, l.LeftHip, l.RightHip} {
		if lm.Visibility < MinVisibility {
			return orientation.PoseSignal{}
		}
	}

	hipY := (l.LeftHip.Y + l.RightHip.Y) / 2
	rotation := 0
	if l.Nose.Y > hipY {
		rotation = 180
	}
	return orientation.PoseSignal{
		Signal:    orientation.Signal{Rotation: rotation, Confidence: Confidence},
		Available: true,
	}
}

// session is one running landmark process.
type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	done   chan struct{}
}

// SubprocessEstimator implements orientation.PoseEstimator.
type SubprocessEstimator struct {
	command []string
	timeout time.Duration
	logger  *logging.Logger

	mu   sync.Mutex
	sess *session
}

// NewSubprocessEstimator prepares an estimator for command, a
// whitespace-separated program and arguments. The process is started lazily.
// A positive timeout bounds each request.
func NewSubprocessEstimator(command string, timeout time.Duration) (*SubprocessEstimator, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("pose command is empty")
	}
	return &SubprocessEstimator{
		command: fields,
		timeout: timeout,
		logger:  logging.NewLogger("Pose"),
	}, nil
}

// EstimatePose sends img to the landmark process and decides from its reply.
func (e *SubprocessEstimator) EstimatePose(ctx context.Context, img image.Image) orientation.PoseSignal {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		e.logger.Warn("Failed to encode page for pose estimation", "error", err)
		return orientation.PoseSignal{}
	}
	b := img.Bounds()
	req := Request{Image: buf.Bytes(), Width: b.Dx(), Height: b.Dy()}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess == nil {
		sess, err := e.spawn()
		if err != nil {
			e.logger.Warn("Pose estimator unavailable", "error", err)
			return orientation.PoseSignal{}
		}
		e.sess = sess
	}

	landmarks, err := e.sess.roundTrip(ctx, req)
	if err != nil {
		e.logger.Warn("Pose estimation failed, restarting process", "error", err)
		e.stopLocked()
		return orientation.PoseSignal{}
	}
	if landmarks.Error != "" {
		e.logger.Debug("Pose estimator reported error", "error", landmarks.Error)
		return orientation.PoseSignal{}
	}
	return Decide(landmarks)
}

// Close stops the landmark process.
func (e *SubprocessEstimator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	return nil
}

func (e *SubprocessEstimator) spawn() (*session, error) {
	cmd := exec.Command(e.command[0], e.command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pose process: %w", err)
	}
	e.logger.Info("Pose process spawned", "pid", cmd.Process.Pid, "command", strings.Join(e.command, " "))

	go e.logStderr(stderr)

	sess := &session{cmd: cmd, stdin: stdin, stdout: stdout, done: make(chan struct{})}
	go func() {
		// Reap to prevent zombies
		_ = cmd.Wait()
		close(sess.done)
	}()
	return sess, nil
}

func (e *SubprocessEstimator) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		e.logger.Debug("pose process log", "log", scanner.Text())
	}
}

func (e *SubprocessEstimator) stopLocked() {
	if e.sess == nil {
		return
	}
	_ = e.sess.stdin.Close()
	if e.sess.cmd != nil && e.sess.cmd.Process != nil {
		_ = e.sess.cmd.Process.Kill()
		<-e.sess.done
	}
	e.sess = nil
}

// roundTrip writes req and waits for one reply or ctx.
func (s *session) roundTrip(ctx context.Context, req Request) (Landmarks, error) {
	type reply struct {
		l   Landmarks
		err error
	}
	ch := make(chan reply, 1)

	go func() {
		var r reply
		if r.err = writeFrame(s.stdin, req); r.err == nil {
			r.err = readFrame(s.stdout, &r.l)
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		return r.l, r.err
	case <-ctx.Done():
		return Landmarks{}, ctx.Err()
	}
}
