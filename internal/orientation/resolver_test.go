package orientation

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var marker = color.RGBA{R: 255, A: 255}

// page builds an upright uw×uh raster with a marker in its top-left corner and
// then turns it clockwise by skew, the way a misfed scan would look.
func page(uw, uh, skew int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, uw, uh))
	img.Set(0, 0, marker)
	if skew == 0 {
		return img
	}
	return RotateClockwise(img, skew)
}

// viewOf returns the clockwise rotation that would bring the marker back to
// the top-left corner.
func viewOf(img image.Image) int {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	corners := []struct {
		x, y int
		fix  int
	}{
		{0, 0, 0},
		{w - 1, 0, 270},
		{w - 1, h - 1, 180},
		{0, h - 1, 90},
	}
	for _, c := range corners {
		r, _, _, a := img.At(b.Min.X+c.x, b.Min.Y+c.y).RGBA()
		if r == 0xffff && a == 0xffff {
			return c.fix
		}
	}
	return -1
}

type fakeOSD struct {
	byView map[int]Signal
	calls  []int
}

func (f *fakeOSD) DetectOrientation(_ context.Context, img image.Image) Signal {
	v := viewOf(img)
	f.calls = append(f.calls, v)
	return f.byView[v]
}

type fakeText struct {
	byView map[int]bool
}

func (f fakeText) HasText(_ context.Context, img image.Image) bool {
	return f.byView[viewOf(img)]
}

type fakePose struct {
	byView map[int]PoseSignal
	calls  int
}

func (f *fakePose) EstimatePose(_ context.Context, img image.Image) PoseSignal {
	f.calls++
	return f.byView[viewOf(img)]
}

func textEverywhere() fakeText {
	return fakeText{byView: map[int]bool{0: true, 90: true, 180: true, 270: true}}
}

func TestRotateClockwiseMovesMarker(t *testing.T) {
	img := page(4, 6, 0)
	assert.Equal(t, 0, viewOf(img))

	r90 := RotateClockwise(img, 90)
	assert.Equal(t, image.Rect(0, 0, 6, 4), r90.Bounds())
	assert.Equal(t, 270, viewOf(r90))

	assert.Equal(t, 180, viewOf(RotateClockwise(img, 180)))
	assert.Equal(t, 90, viewOf(RotateClockwise(img, 270)))
	assert.Equal(t, 0, viewOf(RotateClockwise(RotateClockwise(img, 90), 270)))
}

func TestResolvePortraitSkipsLandscapeStage(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: 12}}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	d := r.Resolve(context.Background(), page(10, 20, 0), NewFallbackTracker())

	assert.True(t, d.Portrait)
	assert.Equal(t, 0, d.PrimaryRotation)
	assert.Equal(t, PortraitConfidence, d.PrimaryConfidence)
	// Only the upright/inverted stage may call OSD.
	assert.Equal(t, []int{0}, osd.calls)
	assert.Equal(t, 0, d.TotalRotation)
	assert.Equal(t, ProvenanceOSD, d.Provenance)
}

func TestResolveSquarePageIsPortrait(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: 12}}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	d := r.Resolve(context.Background(), page(8, 8, 0), NewFallbackTracker())

	assert.True(t, d.Portrait)
	assert.Len(t, osd.calls, 1)
}

func TestResolveLandscapeSnapsPrimary(t *testing.T) {
	// An upright portrait scanned a quarter turn clockwise needs 270 back.
	osd := &fakeOSD{byView: map[int]Signal{
		270: {Rotation: 265, Confidence: 7},
		0:   {Rotation: 0, Confidence: 9},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	d := r.Resolve(context.Background(), page(10, 20, 90), NewFallbackTracker())

	assert.False(t, d.Portrait)
	assert.Equal(t, 270, d.PrimaryRotation)
	assert.Equal(t, 7.0, d.PrimaryConfidence)
	assert.Equal(t, 0, d.UpdownRotation)
	assert.Equal(t, 270, d.TotalRotation)
	assert.Equal(t, []int{270, 0}, osd.calls)
}

func TestResolveLandscapeFailedOSDStillSnaps(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, fakeText{}, nil)

	d := r.Resolve(context.Background(), page(20, 10, 0), NewFallbackTracker())

	assert.False(t, d.Portrait)
	assert.Contains(t, LandscapeAngles, d.PrimaryRotation)
	assert.Equal(t, 90, d.PrimaryRotation)
	assert.Equal(t, 0.0, d.PrimaryConfidence)
}

func TestResolveLandscapeNeverDoubleChecks(t *testing.T) {
	// OSD misreads the landscape page, so the quarter turn leaves it inverted.
	osd := &fakeOSD{byView: map[int]Signal{
		90:  {Rotation: 270, Confidence: 8},
		180: {Rotation: 180, Confidence: 8},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	img := page(10, 20, 270)
	require.Equal(t, 90, viewOf(img))

	d := r.Resolve(context.Background(), img, NewFallbackTracker())

	assert.Equal(t, 270, d.PrimaryRotation)
	assert.Equal(t, 180, d.UpdownRotation)
	assert.Equal(t, 90, d.TotalRotation)
	assert.False(t, d.DoubleCheckReverted)
	assert.Equal(t, []int{90, 180}, osd.calls)
}

func TestResolveAlreadyUprightDocumentIsUnchanged(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: 15}}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), &fakePose{})
	tracker := NewFallbackTracker()

	changed := 0
	for i := 0; i < 4; i++ {
		d := r.Resolve(context.Background(), page(10, 14, 0), tracker)
		if _, c := Compose(0, d.TotalRotation); c {
			changed++
		}
	}

	assert.Zero(t, changed)
	assert.Equal(t, []int{0, 0, 0, 0}, tracker.History())
}

func TestResolveMajorityFallback(t *testing.T) {
	ctx := context.Background()
	tracker := NewFallbackTracker()
	confident := NewResolver(Config{ConfidenceThreshold: 5},
		&fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: 8}}},
		textEverywhere(), nil)

	for i := 0; i < 3; i++ {
		d := confident.Resolve(ctx, page(10, 14, 0), tracker)
		require.Equal(t, 0, d.UpdownRotation)
		require.False(t, d.FallbackUsed)
	}
	require.Equal(t, 3, tracker.Len())

	// Page 4: no text and a weak pose reading that contradicts the majority.
	pose := &fakePose{byView: map[int]PoseSignal{
		0: {Signal: Signal{Rotation: 180, Confidence: 2}, Available: true},
	}}
	osd := &fakeOSD{byView: map[int]Signal{}}
	weak := NewResolver(Config{ConfidenceThreshold: 5}, osd, fakeText{}, pose)

	d := weak.Resolve(ctx, page(10, 14, 0), tracker)

	assert.Equal(t, 0, d.UpdownRotation)
	assert.True(t, d.FallbackUsed)
	assert.True(t, d.PoseUsed)
	assert.Equal(t, ProvenanceFallback, d.Provenance)
	assert.Equal(t, 2.0, d.Confidence)
	assert.Equal(t, 3, tracker.Len(), "fallback pages never feed the history")
	assert.Empty(t, osd.calls, "no double-check when the majority keeps the page upright")

	// Page 5 is confident again and extends the history.
	d = confident.Resolve(ctx, page(10, 14, 0), tracker)
	assert.False(t, d.FallbackUsed)
	assert.Equal(t, 4, tracker.Len())
}

func TestResolveLowConfidenceWithoutHistoryKeepsRawSignal(t *testing.T) {
	pose := &fakePose{byView: map[int]PoseSignal{
		180: {Signal: Signal{Rotation: 180, Confidence: 3}, Available: true},
	}}
	osd := &fakeOSD{byView: map[int]Signal{
		180: {Rotation: 180, Confidence: 1},
		0:   {Rotation: 0, Confidence: 4},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, fakeText{}, pose)
	tracker := NewFallbackTracker()

	d := r.Resolve(context.Background(), page(10, 14, 180), tracker)

	assert.False(t, d.FallbackUsed)
	assert.Equal(t, 180, d.UpdownRotation)
	assert.False(t, d.DoubleCheckReverted)
	assert.Zero(t, tracker.Len())
}

func TestResolveDoubleCheckRevertsPoseFlip(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{
		0:   {Rotation: 0, Confidence: 8},
		180: {Rotation: 180, Confidence: 3},
	}}
	pose := &fakePose{byView: map[int]PoseSignal{
		0: {Signal: Signal{Rotation: 180, Confidence: 9}, Available: true},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 10}, osd, fakeText{}, pose)

	d := r.Resolve(context.Background(), page(10, 14, 0), NewFallbackTracker())

	assert.True(t, d.PoseUsed)
	assert.True(t, d.DoubleCheckReverted)
	assert.Equal(t, ProvenanceDoubleCheckRevert, d.Provenance)
	assert.Equal(t, 0, d.UpdownRotation)
	assert.Equal(t, 0, d.TotalRotation)
	// Fresh OCR on the unrotated page, then on the flipped candidate.
	assert.Equal(t, []int{0, 180}, osd.calls)

	_, changed := Compose(0, d.TotalRotation)
	assert.False(t, changed)
}

func TestResolveDoubleCheckKeepsGenuineFlip(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{
		180: {Rotation: 180, Confidence: 9},
		0:   {Rotation: 0, Confidence: 9},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)
	tracker := NewFallbackTracker()

	d := r.Resolve(context.Background(), page(10, 14, 180), tracker)

	assert.Equal(t, 180, d.UpdownRotation)
	assert.Equal(t, 180, d.TotalRotation)
	assert.False(t, d.DoubleCheckReverted)
	assert.Equal(t, ProvenanceOSD, d.Provenance)
	assert.Equal(t, []int{180}, tracker.History())
	assert.Equal(t, []int{180, 0}, osd.calls)
}

func TestResolveDoubleCheckAfterFallbackFlip(t *testing.T) {
	tracker := NewFallbackTracker()
	tracker.Record(180)

	osd := &fakeOSD{byView: map[int]Signal{
		0:   {Rotation: 0, Confidence: 2},
		180: {Rotation: 90, Confidence: 6},
	}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	d := r.Resolve(context.Background(), page(10, 14, 0), tracker)

	assert.True(t, d.FallbackUsed)
	assert.True(t, d.DoubleCheckReverted)
	assert.Equal(t, 0, d.UpdownRotation)
	assert.Equal(t, ProvenanceDoubleCheckRevert, d.Provenance)
	// Text was present, so the Step-A reading is reused.
	assert.Equal(t, []int{0, 180}, osd.calls)
}

func TestResolvePoseGating(t *testing.T) {
	testCases := []struct {
		name      string
		hasText   bool
		ocrConf   float64
		wantCalls int
	}{
		{name: "no text consults pose", hasText: false, wantCalls: 1},
		{name: "weak OCR below ceiling consults pose", hasText: true, ocrConf: 0.3, wantCalls: 1},
		{name: "OCR at ceiling is trusted", hasText: true, ocrConf: PoseOverrideCeiling, wantCalls: 0},
		{name: "sub-threshold OCR is trusted", hasText: true, ocrConf: 3, wantCalls: 0},
		{name: "confident OCR skips pose", hasText: true, ocrConf: 8, wantCalls: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: tc.ocrConf}}}
			pose := &fakePose{}
			text := fakeText{byView: map[int]bool{0: tc.hasText}}
			r := NewResolver(Config{ConfidenceThreshold: 5}, osd, text, pose)

			r.Resolve(context.Background(), page(10, 14, 0), NewFallbackTracker())

			assert.Equal(t, tc.wantCalls, pose.calls)
		})
	}
}

func TestResolvePoseMustBeatOCR(t *testing.T) {
	testCases := []struct {
		name     string
		pose     PoseSignal
		wantPose bool
	}{
		{name: "unavailable", pose: PoseSignal{Signal: Signal{Rotation: 180, Confidence: 9}}, wantPose: false},
		{name: "equal confidence", pose: PoseSignal{Signal: Signal{Rotation: 180, Confidence: 0.2}, Available: true}, wantPose: false},
		{name: "stronger", pose: PoseSignal{Signal: Signal{Rotation: 0, Confidence: 10}, Available: true}, wantPose: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: 0.2}}}
			pose := &fakePose{byView: map[int]PoseSignal{0: tc.pose}}
			r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), pose)

			d := r.Resolve(context.Background(), page(10, 14, 0), NewFallbackTracker())

			assert.Equal(t, tc.wantPose, d.PoseUsed)
			if !tc.wantPose {
				assert.Equal(t, 0.2, d.Confidence)
			}
		})
	}
}

func TestResolveClampsNegativeConfidence(t *testing.T) {
	osd := &fakeOSD{byView: map[int]Signal{0: {Rotation: 0, Confidence: -4}}}
	r := NewResolver(Config{ConfidenceThreshold: 5}, osd, textEverywhere(), nil)

	d := r.Resolve(context.Background(), page(10, 14, 0), nil)

	assert.Equal(t, 0.0, d.Confidence)
}

func TestReportCollector(t *testing.T) {
	c := NewReportCollector(5)

	assert.False(t, c.Observe(1, Decision{Confidence: 6, PrimaryConfidence: PortraitConfidence}))
	assert.True(t, c.Observe(2, Decision{Confidence: 2, PrimaryConfidence: PortraitConfidence, FallbackUsed: true, Provenance: ProvenanceFallback}))
	assert.True(t, c.Observe(3, Decision{Confidence: 9, PrimaryConfidence: 1, PrimaryRotation: 90, TotalRotation: 90}))

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Page)
	assert.True(t, entries[0].FallbackUsed)
	assert.Equal(t, "fallback", entries[0].Provenance)
	assert.Equal(t, 3, entries[1].Page)
	assert.Equal(t, 90, entries[1].TotalRotation)
}
