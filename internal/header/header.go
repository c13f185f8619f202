// Package header drives the visibility of the reading screen chrome.
package header

import (
	"sync"
	"time"

	"github.com/metcalfc/bivium/internal/clock"
)

const (
	DefaultHideDelay    = 2500 * time.Millisecond
	DefaultHintDuration = 4 * time.Second
	// HintText is shown after the header hides itself.
	HintText = "Doble tap para controles"
)

// Visibility of the header.
type Visibility int

const (
	Visible Visibility = iota
	Hidden
)

func (v Visibility) String() string {
	if v == Hidden {
		return "hidden"
	}
	return "visible"
}

// Snapshot is the observable state of the controller.
type Snapshot struct {
	Visibility Visibility
	HintShown  bool
	Immersive  bool
}

// Options configures a Controller.
type Options struct {
	HideDelay    time.Duration
	HintDuration time.Duration
	Clock        clock.Clock
	// OnChange is called outside the controller's lock after every change.
	OnChange func(Snapshot)
}

// Controller is the header state machine of one screen. In immersive mode the
// header hides after HideDelay without interaction and a hint is shown for
// HintDuration. Outside immersive mode it is always visible and no timer runs.
type Controller struct {
	opts Options

	mu      sync.Mutex
	state   Snapshot
	hide    clock.Timer
	hint    clock.Timer
	hideGen uint64
	hintGen uint64
	closed  bool
}

// New returns a controller in the Visible, non-immersive state.
func New(opts Options) *Controller {
	if opts.HideDelay <= 0 {
		opts.HideDelay = DefaultHideDelay
	}
	if opts.HintDuration <= 0 {
		opts.HintDuration = DefaultHintDuration
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Controller{opts: opts}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetImmersive switches presentation mode. The header becomes visible either
// way; entering immersive mode arms the hide timer, leaving it cancels every
// pending timer.
func (c *Controller) SetImmersive(on bool) {
	c.update(func() {
		c.state.Immersive = on
		c.show()
		if on {
			c.scheduleHide()
		} else {
			c.cancelHide()
		}
	})
}

// Toggle flips the header in immersive mode. Showing it clears the hint and
// re-arms the hide timer; hiding it cancels the hide timer.
func (c *Controller) Toggle() {
	c.update(func() {
		if !c.state.Immersive {
			return
		}
		if c.state.Visibility == Visible {
			c.state.Visibility = Hidden
			c.cancelHide()
			return
		}
		c.show()
		c.scheduleHide()
	})
}

// Touch reports an interaction such as scrolling. While the header is
// visible in immersive mode it restarts the hide delay.
func (c *Controller) Touch() {
	c.update(func() {
		if c.state.Immersive && c.state.Visibility == Visible {
			c.scheduleHide()
		}
	})
}

// Close cancels all timers. No callback fires afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelHide()
	c.cancelHint()
}

func (c *Controller) update(f func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	before := c.state
	f()
	after := c.state
	c.mu.Unlock()

	if before != after && c.opts.OnChange != nil {
		c.opts.OnChange(after)
	}
}

// show makes the header visible and drops the hint.
func (c *Controller) show() {
	c.state.Visibility = Visible
	c.state.HintShown = false
	c.cancelHint()
}

func (c *Controller) scheduleHide() {
	c.cancelHide()
	gen := c.hideGen
	c.hide = c.opts.Clock.AfterFunc(c.opts.HideDelay, func() {
		c.update(func() {
			if gen != c.hideGen {
				return
			}
			c.hide = nil
			c.state.Visibility = Hidden
			c.state.HintShown = true
			c.scheduleHint()
		})
	})
}

func (c *Controller) scheduleHint() {
	c.cancelHint()
	gen := c.hintGen
	c.hint = c.opts.Clock.AfterFunc(c.opts.HintDuration, func() {
		c.update(func() {
			if gen != c.hintGen {
				return
			}
			c.hint = nil
			c.state.HintShown = false
		})
	})
}

// cancelHide invalidates any armed hide callback, including one that is
// already running and waiting for the lock.
func (c *Controller) cancelHide() {
	c.hideGen++
	if c.hide != nil {
		c.hide.Stop()
		c.hide = nil
	}
}

func (c *Controller) cancelHint() {
	c.hintGen++
	if c.hint != nil {
		c.hint.Stop()
		c.hint = nil
	}
}
