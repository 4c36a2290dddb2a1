package orientation

// UprightAngles is the allowed set for the upright/inverted stage.
var UprightAngles = []int{0, 180}

// LandscapeAngles is the allowed set for landscape normalization.
var LandscapeAngles = []int{90, 270}

// Snap returns the element of allowed closest to angle by circular distance.
// Ties resolve to the earliest element of allowed. allowed must be non-empty.
func Snap(angle int, allowed []int) int {
	a := Normalize(angle)
	best := allowed[0]
	bestDist := circularDistance(a, Normalize(best))
	for _, candidate := range allowed[1:] {
		if d := circularDistance(a, Normalize(candidate)); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// Normalize maps any integer angle into [0, 360).
func Normalize(angle int) int {
	return ((angle % 360) + 360) % 360
}

func circularDistance(a, b int) int {
	d1 := Normalize(a - b)
	d2 := Normalize(b - a)
	if d1 < d2 {
		return d1
	}
	return d2
}
