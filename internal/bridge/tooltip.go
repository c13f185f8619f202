package bridge

// Rect is an axis aligned box in surface coordinates.
type Rect struct {
	Left, Top, Width, Height float64
}

func (r Rect) Bottom() float64 { return r.Top + r.Height }

// TooltipLayout holds the placement constants of a tooltip overlay.
type TooltipLayout struct {
	Width   float64 // overlay width
	Margin  float64 // minimum distance to the surface edges
	Gap     float64 // distance below the anchor
	Lift    float64 // distance above the anchor top
	TopZone float64 // anchors closer than this to the top always place below
}

// WebTooltip is the layout used by browser surfaces, in CSS pixels.
var WebTooltip = TooltipLayout{Width: 260, Margin: 10, Gap: 12, Lift: 80, TopZone: 100}

// Placement is where a tooltip ends up.
type Placement struct {
	Left, Top float64
	Below     bool
}

// PlaceTooltip anchors an overlay on the horizontal center of anchor, clamped
// to stay inside a surface of the given width. It goes below the anchor when
// the segment opens the chapter (start) or sits near the top, above otherwise.
func PlaceTooltip(anchor Rect, width float64, start bool, l TooltipLayout) Placement {
	left := anchor.Left + anchor.Width/2 - l.Width/2
	if left+l.Width > width-l.Margin {
		left = width - l.Width - l.Margin
	}
	if left < l.Margin {
		left = l.Margin
	}
	if left+l.Width > width {
		left = 0
	}

	if start || anchor.Top < l.TopZone {
		return Placement{Left: left, Top: anchor.Bottom() + l.Gap, Below: true}
	}
	return Placement{Left: left, Top: anchor.Top - l.Lift}
}

// StartSegments is how many leading segments of the first paragraph always
// get their tooltip below.
const StartSegments = 3
