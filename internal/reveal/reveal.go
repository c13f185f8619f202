// Package reveal holds the single authority for which segment of a chapter
// currently shows its translation.
package reveal

import "sync"

// Change describes one transition of the revealed segment. An empty id means
// nothing is revealed.
type Change struct {
	Prev string
	Next string
	Seq  uint64
}

// Controller is the only writer of the reveal state. Every surface reads from
// it and reconciles to it.
type Controller struct {
	mu      sync.Mutex
	current string
	seq     uint64
	nextSub int
	subs    map[int]func(Change)
}

// New returns a controller with nothing revealed.
func New() *Controller {
	return &Controller{subs: make(map[int]func(Change))}
}

// Toggle reveals id, or clears the state when id is already revealed. Replacing
// one id by another is a single step. Unknown ids are accepted.
func (c *Controller) Toggle(id string) Change {
	c.mu.Lock()
	next := id
	if c.current == id {
		next = ""
	}
	return c.set(next)
}

// Clear hides whatever is revealed.
func (c *Controller) Clear() Change {
	c.mu.Lock()
	return c.set("")
}

// set updates the state and notifies subscribers. Called with c.mu held; it
// releases the lock before notifying.
func (c *Controller) set(next string) Change {
	ch := Change{Prev: c.current, Next: next}
	if ch.Prev == ch.Next {
		ch.Seq = c.seq
		c.mu.Unlock()
		return ch
	}
	c.current = next
	c.seq++
	ch.Seq = c.seq
	subs := make([]func(Change), 0, len(c.subs))
	for _, f := range c.subs {
		subs = append(subs, f)
	}
	c.mu.Unlock()

	for _, f := range subs {
		f(ch)
	}
	return ch
}

// Current returns the revealed segment id.
func (c *Controller) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.current != ""
}

// Subscribe registers f for every change. Subscribers should read Current
// rather than trust the order of notifications. The returned func removes f.
func (c *Controller) Subscribe(f func(Change)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = f
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}
