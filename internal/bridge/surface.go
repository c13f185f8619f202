package bridge

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/reader"
)

// SurfaceOptions configures the host side of a surface.
type SurfaceOptions struct {
	Logger *zap.Logger
	// Deliver receives every valid message, tagged with the paragraph index.
	Deliver func(index int, m Message)
}

// Surface is the host side of one paragraph surface. Commands are queued
// without blocking and coalesced per kind: only the latest font, theme and
// reveal command is sent.
type Surface struct {
	para    reader.Paragraph
	tr      Transport
	log     *zap.Logger
	deliver func(int, Message)

	mu      sync.Mutex
	font    *Command
	theme   *Command
	reveal  *Command
	last    Command
	hasLast bool
	wake    chan struct{}
}

// NewSurface wraps the host end of a transport connected to the surface that
// renders para.
func NewSurface(para reader.Paragraph, tr Transport, opts SurfaceOptions) *Surface {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	deliver := opts.Deliver
	if deliver == nil {
		deliver = func(int, Message) {}
	}
	return &Surface{
		para:    para,
		tr:      tr,
		log:     log.With(zap.Int("paragraph", para.Index)),
		deliver: deliver,
		wake:    make(chan struct{}, 1),
	}
}

// Index returns the paragraph index.
func (s *Surface) Index() int { return s.para.Index }

// Sync queues the reveal command matching the given state. Ids outside the
// paragraph become a ClearReveal. A command equal to the last one queued is
// skipped; the result reports whether anything was queued.
func (s *Surface) Sync(revealed string, p Presentation) bool {
	if !s.para.Contains(revealed) {
		revealed = ""
	}
	cmd := Reveal(revealed, p)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLast && s.last == cmd {
		return false
	}
	s.last, s.hasLast = cmd, true
	s.reveal = &cmd
	s.signal()
	return true
}

// SetFont queues a font change.
func (s *Surface) SetFont(f FontSpec) {
	cmd := SetFont(f)
	s.mu.Lock()
	s.font = &cmd
	s.signal()
	s.mu.Unlock()
}

// SetTheme queues a theme change.
func (s *Surface) SetTheme(p Palette) {
	cmd := SetTheme(p)
	s.mu.Lock()
	s.theme = &cmd
	s.signal()
	s.mu.Unlock()
}

func (s *Surface) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Handle decodes one inbound payload and delivers it. Malformed payloads are
// dropped.
func (s *Surface) Handle(data []byte) {
	m, err := Decode(data)
	if err != nil {
		s.log.Debug("Dropping surface message", zap.Error(err), zap.ByteString("payload", truncate(data, 256)))
		return
	}
	s.deliver(s.para.Index, m)
}

// Run pumps both directions until ctx is cancelled or the transport closes.
func (s *Surface) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		s.tr.Close()
	}()

	errc := make(chan error, 1)
	go func() { errc <- s.writeLoop(ctx) }()

	err := s.readLoop(ctx)
	cancel()
	if werr := <-errc; err == nil {
		err = werr
	}
	if errors.Is(err, ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close shuts the transport down.
func (s *Surface) Close() error {
	return s.tr.Close()
}

func (s *Surface) readLoop(ctx context.Context) error {
	for {
		data, err := s.tr.Receive(ctx)
		if err != nil {
			return err
		}
		s.Handle(data)
	}
}

func (s *Surface) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		}
		for _, cmd := range s.drain() {
			data, err := EncodeCommand(cmd)
			if err != nil {
				s.log.Warn("Unable to encode command", zap.String("kind", string(cmd.Kind)), zap.Error(err))
				continue
			}
			if err := s.tr.Send(ctx, data); err != nil {
				return err
			}
		}
	}
}

// drain takes the pending commands: font and theme first so that a reveal is
// measured with the final metrics.
func (s *Surface) drain() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Command
	for _, c := range []**Command{&s.font, &s.theme, &s.reveal} {
		if *c != nil {
			out = append(out, **c)
			*c = nil
		}
	}
	return out
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
