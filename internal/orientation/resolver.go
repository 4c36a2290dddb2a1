package orientation

import (
	"context"
	"fmt"
	"image"
	"math"
)

const (
	// PortraitConfidence is the confidence credited to the landscape stage
	// when the aspect ratio alone says the page is already portrait.
	PortraitConfidence = 10.0

	// PoseOverrideCeiling is the OCR confidence below which the pose
	// estimator may be consulted even though text was found.
	PoseOverrideCeiling = 0.5

	// DefaultConfidenceThreshold gates every fusion decision.
	DefaultConfidenceThreshold = 5.0
)

// Provenance names the mechanism that settled a page's upright/inverted
// rotation.
type Provenance string

const (
	ProvenanceOSD               Provenance = "osd"
	ProvenancePose              Provenance = "pose"
	ProvenanceFallback          Provenance = "fallback"
	ProvenanceDoubleCheckRevert Provenance = "double-check-revert"
)

// Config holds the resolver's tunables.
type Config struct {
	ConfidenceThreshold float64
}

// Decision is the resolver's verdict for one page.
type Decision struct {
	Portrait          bool
	PrimaryRotation   int
	PrimaryConfidence float64
	UpdownRotation    int
	Confidence        float64
	TotalRotation     int
	Provenance        Provenance

	FallbackUsed        bool
	PoseUsed            bool
	DoubleCheckReverted bool
}

func (d Decision) String() string {
	return fmt.Sprintf("total=%d (primary=%d updown=%d) conf=%.2f via %s",
		d.TotalRotation, d.PrimaryRotation, d.UpdownRotation, d.Confidence, d.Provenance)
}

// Resolver runs the two-stage orientation fusion for a single page.
type Resolver struct {
	cfg  Config
	osd  OrientationDetector
	text TextPresenceProbe
	pose PoseEstimator
}

// NewResolver wires a resolver. A nil pose estimator is replaced by
// NoopPoseEstimator.
func NewResolver(cfg Config, osd OrientationDetector, text TextPresenceProbe, pose PoseEstimator) *Resolver {
	if pose == nil {
		pose = NoopPoseEstimator{}
	}
	return &Resolver{cfg: cfg, osd: osd, text: text, pose: pose}
}

// Threshold returns the configured confidence threshold.
func (r *Resolver) Threshold() float64 {
	return r.cfg.ConfidenceThreshold
}

// Resolve decides the clockwise rotation for img. tracker holds the
// decisions of earlier pages of the same document and is updated when this
// page is confident.
func (r *Resolver) Resolve(ctx context.Context, img image.Image, tracker *FallbackTracker) Decision {
	if tracker == nil {
		tracker = NewFallbackTracker()
	}
	d := Decision{Portrait: IsPortrait(img), Provenance: ProvenanceOSD}

	// Stage 1: landscape normalization.
	d.PrimaryConfidence = PortraitConfidence
	if !d.Portrait {
		sig := sanitize(r.osd.DetectOrientation(ctx, img))
		d.PrimaryRotation = Snap(sig.Rotation, LandscapeAngles)
		d.PrimaryConfidence = sig.Confidence
	}
	portrait := img
	if d.PrimaryRotation != 0 {
		portrait = RotateClockwise(img, d.PrimaryRotation)
	}

	// Stage 2: upright or inverted.
	hasText := r.text.HasText(ctx, portrait)
	var measured Signal
	if hasText {
		measured = sanitize(r.osd.DetectOrientation(ctx, portrait))
	}
	fused := measured

	if fused.Confidence < r.cfg.ConfidenceThreshold && (!hasText || fused.Confidence < PoseOverrideCeiling) {
		if p := r.pose.EstimatePose(ctx, portrait); p.Available && p.Confidence > fused.Confidence {
			fused = sanitize(p.Signal)
			d.PoseUsed = true
			d.Provenance = ProvenancePose
		}
	}
	d.Confidence = fused.Confidence
	d.UpdownRotation = Snap(fused.Rotation, UprightAngles)

	if fused.Confidence < r.cfg.ConfidenceThreshold {
		if majority, ok := tracker.Majority(); ok {
			d.UpdownRotation = majority
			d.FallbackUsed = true
			d.Provenance = ProvenanceFallback
		}
	} else {
		tracker.Record(d.UpdownRotation)
	}

	// Double-check a provisional flip against OCR on both candidates.
	if d.Portrait && d.UpdownRotation == 180 {
		if !hasText {
			measured = sanitize(r.osd.DetectOrientation(ctx, portrait))
		}
		original := uprightScore(measured)
		rotated := uprightScore(sanitize(r.osd.DetectOrientation(ctx, RotateClockwise(portrait, 180))))
		if original > rotated {
			d.UpdownRotation = 0
			d.DoubleCheckReverted = true
			d.Provenance = ProvenanceDoubleCheckRevert
		}
	}

	d.TotalRotation = Normalize(d.PrimaryRotation + d.UpdownRotation)
	return d
}

// uprightScore is the confidence that the measured image already reads
// upright; a hint other than 0 scores nothing.
func uprightScore(s Signal) float64 {
	if Normalize(s.Rotation) == 0 {
		return s.Confidence
	}
	return 0
}

func sanitize(s Signal) Signal {
	if s.Confidence < 0 || math.IsNaN(s.Confidence) || math.IsInf(s.Confidence, 0) {
		s.Confidence = 0
	}
	return s
}
