// Package progress turns a continuous scroll offset into a persisted reading
// position.
package progress

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/clock"
)

// Defaults for pixel based hosts.
const (
	// DefaultRowHeight is the assumed height of one segment. Positions are
	// estimated from it, never measured.
	DefaultRowHeight = 50.0
	DefaultStride    = 5
	DefaultInterval  = 3 * time.Second
	// DefaultSettleDelay lets the initial layout finish before restoring.
	DefaultSettleDelay = 300 * time.Millisecond
)

// EstimateIndex maps a scroll offset to a segment index.
func EstimateIndex(offset, rowHeight float64) int {
	if rowHeight <= 0 || offset <= 0 || math.IsNaN(offset) {
		return 0
	}
	return int(math.Floor(offset / rowHeight))
}

// Options configures a Tracker.
type Options struct {
	RowHeight    float64
	Stride       int
	Interval     time.Duration
	SettleDelay  time.Duration
	SegmentCount int
	Clock        clock.Clock
	Logger       *zap.Logger

	// Save persists an index. It must not block; stores queue the write.
	Save func(index int)
	// ScrollTo moves the host view. animated is always false for restores.
	ScrollTo func(offset float64, animated bool)
}

// Tracker estimates the current segment from scroll offsets and decides when
// to persist it.
type Tracker struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	index    int
	scrolled bool // scroll events since the interval timer was armed
	ticker   clock.Timer
	restored bool
	restore  clock.Timer
	closed   bool
}

// New returns a tracker for a chapter of opts.SegmentCount segments.
func New(opts Options) *Tracker {
	if opts.RowHeight <= 0 {
		opts.RowHeight = DefaultRowHeight
	}
	if opts.Stride <= 0 {
		opts.Stride = DefaultStride
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Save == nil {
		opts.Save = func(int) {}
	}
	if opts.ScrollTo == nil {
		opts.ScrollTo = func(float64, bool) {}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{opts: opts, log: log}
}

// OnScroll records a new scroll offset. Every positive multiple of the stride
// crossed since the previous offset is saved, in the order it was crossed.
func (t *Tracker) OnScroll(offset float64) {
	idx := EstimateIndex(offset, t.opts.RowHeight)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	prev := t.index
	t.index = idx
	if t.ticker == nil {
		t.ticker = t.opts.Clock.AfterFunc(t.opts.Interval, t.tick)
		t.scrolled = false
	} else {
		t.scrolled = true
	}
	t.mu.Unlock()

	for _, m := range t.crossed(prev, idx) {
		t.opts.Save(m)
	}
}

// crossed lists the stride multiples passed when moving from prev to idx,
// limited to indices inside the chapter. Moving backwards only idx itself
// can qualify.
func (t *Tracker) crossed(prev, idx int) []int {
	stride := t.opts.Stride
	var out []int
	switch {
	case idx > prev:
		for m := (prev/stride + 1) * stride; m <= idx; m += stride {
			if t.inChapter(m) {
				out = append(out, m)
			}
		}
	case idx < prev:
		// multiples above idx are behind the reader
		if idx%stride == 0 && t.inChapter(idx) {
			out = append(out, idx)
		}
	}
	return out
}

func (t *Tracker) inChapter(i int) bool {
	return i > 0 && (t.opts.SegmentCount <= 0 || i < t.opts.SegmentCount)
}

// clamp bounds an index to the last segment of the chapter.
func (t *Tracker) clamp(i int) int {
	if t.opts.SegmentCount > 0 && i >= t.opts.SegmentCount {
		return t.opts.SegmentCount - 1
	}
	return i
}

// tick saves the current index and keeps the interval running only while
// scroll events keep arriving.
func (t *Tracker) tick() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	idx := t.clamp(t.index)
	if t.scrolled {
		t.scrolled = false
		t.ticker = t.opts.Clock.AfterFunc(t.opts.Interval, t.tick)
	} else {
		t.ticker = nil
	}
	t.mu.Unlock()

	if idx > 0 {
		t.opts.Save(idx)
	}
}

// Restore schedules a single non-animated scroll to the saved index after the
// settle delay. It returns the index it restores, and false when there is
// nothing to restore or a restore already happened on this tracker.
func (t *Tracker) Restore(saved int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restored || t.closed {
		return 0, false
	}
	t.restored = true
	if saved <= 0 {
		return 0, false
	}
	saved = t.clamp(saved)
	offset := float64(saved) * t.opts.RowHeight
	t.restore = t.opts.Clock.AfterFunc(t.opts.SettleDelay, func() {
		t.mu.Lock()
		closed := t.closed
		t.restore = nil
		t.mu.Unlock()
		if closed {
			return
		}
		t.log.Debug("Restoring position", zap.Int("index", saved), zap.Float64("offset", offset))
		t.opts.ScrollTo(offset, false)
	})
	return saved, true
}

// Index returns the current estimated index.
func (t *Tracker) Index() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index
}

// Percent returns the reading progress through the chapter, 0 to 100.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Percent(t.index, t.opts.SegmentCount)
}

// Percent is min(100, round(index/total*100)).
func Percent(index, total int) int {
	if total <= 0 || index <= 0 {
		return 0
	}
	p := int(math.Round(float64(index) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// Close stops all timers and saves the final index once when it is past the
// start. Later calls do nothing.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	if t.restore != nil {
		t.restore.Stop()
		t.restore = nil
	}
	idx := t.clamp(t.index)
	t.mu.Unlock()

	if idx > 0 {
		t.opts.Save(idx)
	}
}
