package bridge

import "sync"

const (
	// DefaultMinHeight keeps an empty surface from collapsing to zero.
	DefaultMinHeight = 50
	// DefaultHeightPadding is added to every reported height.
	DefaultHeightPadding = 20
)

// Negotiator turns surface height reports into container heights. Heights
// only flow from surface to host.
type Negotiator struct {
	Min     float64
	Padding float64

	apply   func(index int, height float64)
	mu      sync.Mutex
	heights map[int]float64
}

// NewNegotiator returns a negotiator that calls apply whenever a paragraph's
// container height changes.
func NewNegotiator(min, padding float64, apply func(index int, height float64)) *Negotiator {
	if apply == nil {
		apply = func(int, float64) {}
	}
	return &Negotiator{Min: min, Padding: padding, apply: apply, heights: make(map[int]float64)}
}

// Report records a height from the surface of paragraph index and returns the
// container height, max(Min, reported+Padding).
func (n *Negotiator) Report(index int, reported float64) float64 {
	h := reported + n.Padding
	if h < n.Min {
		h = n.Min
	}

	n.mu.Lock()
	prev, ok := n.heights[index]
	n.heights[index] = h
	n.mu.Unlock()

	if !ok || prev != h {
		n.apply(index, h)
	}
	return h
}

// Height returns the last container height of paragraph index.
func (n *Negotiator) Height(index int) (float64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.heights[index]
	return h, ok
}
