package bridge

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/clock"
	"github.com/metcalfc/bivium/internal/reader"
)

// DefaultFontSettle is how long a surface waits for new font metrics before
// it measures again.
const DefaultFontSettle = 250 * time.Millisecond

// SandboxOptions configures an in-process surface.
type SandboxOptions struct {
	Width           int  // layout width in cells
	First           bool // paragraph opens the chapter
	Clock           clock.Clock
	DoubleTapWindow time.Duration
	FontSettle      time.Duration
	Logger          *zap.Logger
}

// Sandbox is an in-process surface for hosts that cannot embed a browser. It
// owns its state on a single goroutine and talks to the host only through its
// transport: commands in, frames, heights and taps out.
type Sandbox struct {
	segs  []layoutSegment
	opts  SandboxOptions
	log   *zap.Logger
	host  Transport
	own   Transport
	taps  chan string
	width chan int
	snaps chan chan Frame
	fonts chan uint64
	done  chan struct{}

	// owned by the Run goroutine
	st      layoutState
	fontGen uint64
	tap     TapDetector
	frame   Frame
}

// NewSandbox prepares a surface for para. Call Run to start it.
func NewSandbox(para reader.Paragraph, opts SandboxOptions) *Sandbox {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.FontSettle <= 0 {
		opts.FontSettle = DefaultFontSettle
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	segs := make([]layoutSegment, len(para.Segments))
	for i, seg := range para.Segments {
		segs[i] = layoutSegment{
			id:          seg.ID,
			text:        seg.Text(reader.German),
			translation: seg.Text(reader.Spanish),
			start:       opts.First && i < StartSegments,
		}
	}
	host, own := NewPipe(64)
	return &Sandbox{
		segs:  segs,
		opts:  opts,
		log:   log.With(zap.Int("sandbox", para.Index)),
		host:  host,
		own:   own,
		taps:  make(chan string, 16),
		width: make(chan int, 1),
		snaps: make(chan chan Frame),
		fonts: make(chan uint64),
		done:  make(chan struct{}),
		st:    layoutState{width: opts.Width, presentation: Inline},
		tap:   TapDetector{Window: opts.DoubleTapWindow},
	}
}

// Transport returns the host end of the sandbox's transport.
func (s *Sandbox) Transport() Transport { return s.host }

// Tap injects a tap on segment id. It never blocks; taps arriving faster than
// the sandbox handles them are dropped.
func (s *Sandbox) Tap(id string) {
	select {
	case s.taps <- id:
	default:
		s.log.Debug("Dropping tap", zap.String("segment", id))
	}
}

// Resize changes the layout width.
func (s *Sandbox) Resize(width int) {
	for {
		select {
		case s.width <- width:
			return
		case <-s.done:
			return
		default:
		}
		// replace a pending resize nobody has picked up yet
		select {
		case <-s.width:
		default:
		}
	}
}

// Snapshot returns the current frame.
func (s *Sandbox) Snapshot(ctx context.Context) (Frame, error) {
	reply := make(chan Frame, 1)
	select {
	case s.snaps <- reply:
	case <-s.done:
		return Frame{}, ErrClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
	select {
	case f := <-reply:
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Run serves the surface until ctx is cancelled or the transport closes.
func (s *Sandbox) Run(ctx context.Context) error {
	defer close(s.done)
	defer s.own.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmds := make(chan []byte)
	recvErr := make(chan error, 1)
	go func() {
		for {
			data, err := s.own.Receive(ctx)
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case cmds <- data:
			case <-ctx.Done():
				recvErr <- ctx.Err()
				return
			}
		}
	}()

	if err := s.render(ctx, true); err != nil {
		return quiet(err)
	}
	for {
		var err error
		select {
		case <-ctx.Done():
			return nil
		case err = <-recvErr:
			return quiet(err)
		case data := <-cmds:
			err = s.command(ctx, data)
		case id := <-s.taps:
			err = s.emit(ctx, s.tap.Tap(id, s.opts.Clock.Now()))
		case w := <-s.width:
			if w != s.st.width {
				s.st.width = w
				err = s.render(ctx, true)
			}
		case gen := <-s.fonts:
			if gen == s.fontGen {
				err = s.render(ctx, true)
			}
		case reply := <-s.snaps:
			reply <- s.frame
		}
		if err != nil {
			return quiet(err)
		}
	}
}

func (s *Sandbox) command(ctx context.Context, data []byte) error {
	c, err := DecodeCommand(data)
	if err != nil {
		s.log.Debug("Dropping command", zap.Error(err))
		return nil
	}
	switch c.Kind {
	case KindClearReveal, KindApplyReveal:
		next := s.st
		next.revealed = ""
		if c.Kind == KindApplyReveal && s.has(c.SegmentID) {
			next.revealed = c.SegmentID
			next.presentation = c.Presentation
		}
		if next == s.st {
			return nil
		}
		s.st = next
		return s.render(ctx, true)
	case KindSetFont:
		s.fontGen++
		gen := s.fontGen
		s.opts.Clock.AfterFunc(s.opts.FontSettle, func() {
			select {
			case s.fonts <- gen:
			case <-s.done:
			}
		})
	case KindSetTheme:
		if s.st.theme != c.Theme.Name {
			s.st.theme = c.Theme.Name
			return s.render(ctx, false)
		}
	}
	return nil
}

func (s *Sandbox) has(id string) bool {
	for _, seg := range s.segs {
		if seg.id == id {
			return true
		}
	}
	return false
}

// render lays the paragraph out again and publishes the frame, followed by
// its height when measure is set.
func (s *Sandbox) render(ctx context.Context, measure bool) error {
	s.frame = layout(s.segs, s.st)
	f := s.frame
	if err := s.emit(ctx, Message{Type: TypeFrame, Frame: &f}); err != nil {
		return err
	}
	if !measure {
		return nil
	}
	return s.emit(ctx, HeightReport(float64(f.Height())))
}

func (s *Sandbox) emit(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return s.own.Send(ctx, data)
}

func quiet(err error) error {
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
