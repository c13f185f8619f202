package bridge

import "time"

// DefaultDoubleTapWindow is the longest gap between two taps on the same
// segment that still counts as a double tap.
const DefaultDoubleTapWindow = 300 * time.Millisecond

// TapDetector turns raw taps inside a surface into segmentTap or doubleTap
// messages. It is owned by a single surface and is not safe for concurrent use.
type TapDetector struct {
	Window time.Duration

	lastID string
	lastAt time.Time
}

// Tap classifies a tap on segment id at time at. Taps on different ids never
// combine. The last tap is remembered whatever the outcome.
func (d *TapDetector) Tap(id string, at time.Time) Message {
	window := d.Window
	if window <= 0 {
		window = DefaultDoubleTapWindow
	}
	double := d.lastID == id && !d.lastAt.IsZero() && at.Sub(d.lastAt) < window
	d.lastID, d.lastAt = id, at
	if double {
		return DoubleTap()
	}
	return SegmentTap(id)
}
