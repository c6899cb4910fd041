package logic

// DefaultRateOfChange is the rise across a full window that counts as an
// item being placed.
const DefaultRateOfChange = 5.0

// PlacementDetector recognizes an item being set down as a sudden pressure
// rise across a full history window.
type PlacementDetector struct {
	// Window is the number of samples the history must hold before a
	// placement can be detected.
	Window int

	// Threshold is the minimum newest-minus-oldest rise. The comparison is
	// strict.
	Threshold float64
}

// NewPlacementDetector returns a detector with the given window and threshold.
func NewPlacementDetector(window int, threshold float64) PlacementDetector {
	return PlacementDetector{Window: window, Threshold: threshold}
}

// Detect checks history (oldest first) for a placement. On a placement it
// returns the pressure just before the spike, which becomes the new baseline.
func (d PlacementDetector) Detect(history []float64) (baseline float64, placed bool) {
	if len(history) < d.Window || len(history) == 0 {
		return 0, false
	}
	first := history[0]
	last := history[len(history)-1]
	if last-first > d.Threshold {
		return first, true
	}
	return 0, false
}
