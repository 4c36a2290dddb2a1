package orientation

import (
	"context"
	"image"
)

// Signal is an orientation hint with its confidence. Rotation is the
// clockwise rotation, in degrees, that makes the image upright.
type Signal struct {
	Rotation   int
	Confidence float64
}

// PoseSignal is a Signal that may be unavailable.
type PoseSignal struct {
	Signal
	Available bool
}

// OrientationDetector estimates page orientation from text baselines.
// Implementations must not fail: on any internal problem they return the zero
// Signal.
type OrientationDetector interface {
	DetectOrientation(ctx context.Context, img image.Image) Signal
}

// TextPresenceProbe reports whether an image carries recognizable text.
type TextPresenceProbe interface {
	HasText(ctx context.Context, img image.Image) bool
}

// PoseEstimator infers upright (0) or inverted (180) from human figures.
type PoseEstimator interface {
	EstimatePose(ctx context.Context, img image.Image) PoseSignal
}

// NoopPoseEstimator stands in when no pose model is configured.
type NoopPoseEstimator struct{}

// EstimatePose always reports unavailable.
func (NoopPoseEstimator) EstimatePose(context.Context, image.Image) PoseSignal {
	return PoseSignal{}
}
