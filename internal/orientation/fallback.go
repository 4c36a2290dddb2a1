package orientation

// FallbackTracker records the upright/inverted decisions of confident pages
// within one document. It is append-only; pages read it through Majority.
//
// A tracker belongs to exactly one document run and is not safe for
// concurrent use.
type FallbackTracker struct {
	history []int
	// counts is ordered by first appearance in history.
	counts []angleCount
}

type angleCount struct {
	angle int
	count int
}

// NewFallbackTracker returns an empty tracker.
func NewFallbackTracker() *FallbackTracker {
	return &FallbackTracker{}
}

// Record appends a confident decision.
func (t *FallbackTracker) Record(angle int) {
	t.history = append(t.history, angle)
	for i := range t.counts {
		if t.counts[i].angle == angle {
			t.counts[i].count++
			return
		}
	}
	t.counts = append(t.counts, angleCount{angle: angle, count: 1})
}

// Majority returns the most frequent recorded angle. When several angles share
// the highest count, the one recorded first wins. ok is false when nothing has
// been recorded.
func (t *FallbackTracker) Majority() (angle int, ok bool) {
	if len(t.counts) == 0 {
		return 0, false
	}
	best := t.counts[0]
	for _, c := range t.counts[1:] {
		if c.count > best.count {
			best = c
		}
	}
	return best.angle, true
}

// Len reports how many decisions have been recorded.
func (t *FallbackTracker) Len() int {
	return len(t.history)
}

// History returns a copy of the recorded decisions in order.
func (t *FallbackTracker) History() []int {
	return append([]int(nil), t.history...)
}
