// Package session composes the controllers of one reading screen: the reveal
// authority, the paragraph surfaces, the height negotiator, the progress
// tracker and the header state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/clock"
	"github.com/metcalfc/bivium/internal/header"
	"github.com/metcalfc/bivium/internal/progress"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/reveal"
	"github.com/metcalfc/bivium/internal/state"
)

var (
	ErrClosed      = errors.New("screen closed")
	ErrNoParagraph = errors.New("no such paragraph")
)

// Loader supplies chapter content.
type Loader interface {
	LoadChapter(ctx context.Context, bookID, chapterID string) (*reader.Chapter, error)
}

// HostView is the host view tree of a screen. Calls may arrive from any
// goroutine and must not block.
type HostView interface {
	ScrollTo(offset float64, animated bool)
	SetParagraphHeight(index int, height float64)
	SetHeader(h Header)
}

// FrameView is implemented by hosts that paint in-process surfaces.
type FrameView interface {
	SetFrame(index int, f bridge.Frame)
}

// RevealView is implemented by hosts that render segments themselves.
type RevealView interface {
	SetRevealed(id string)
}

// Header is what the host shows in its chrome.
type Header struct {
	header.Snapshot
	Percent int
	Hint    string
}

// Tuning holds the interaction constants of a host.
type Tuning struct {
	RowHeight        float64
	Stride           int
	ProgressInterval time.Duration
	RestoreDelay     time.Duration
	HideDelay        time.Duration
	HintDuration     time.Duration
	DoubleTap        time.Duration
	MinHeight        float64
	HeightPadding    float64
	FontSettle       time.Duration
}

// DefaultTuning returns the constants of pixel based hosts.
func DefaultTuning() Tuning {
	return Tuning{
		RowHeight:        progress.DefaultRowHeight,
		Stride:           progress.DefaultStride,
		ProgressInterval: progress.DefaultInterval,
		RestoreDelay:     progress.DefaultSettleDelay,
		HideDelay:        header.DefaultHideDelay,
		HintDuration:     header.DefaultHintDuration,
		DoubleTap:        bridge.DefaultDoubleTapWindow,
		MinHeight:        bridge.DefaultMinHeight,
		HeightPadding:    bridge.DefaultHeightPadding,
		FontSettle:       bridge.DefaultFontSettle,
	}
}

type Options struct {
	BookID    string
	ChapterID string
	Loader    Loader
	// Progress and Settings may be nil; the screen then keeps state in
	// memory only.
	Progress *state.ProgressStore
	Settings *state.SettingsStore
	View     HostView
	Clock    clock.Clock
	Logger   *zap.Logger
	// Fresh skips restoring the saved position.
	Fresh      bool
	SystemDark bool
	Tuning     Tuning
	// Endpoint returns the websocket path the browser surface of a
	// paragraph reports to.
	Endpoint func(index int) string
}

// Screen is one mounted chapter.
type Screen struct {
	opts    Options
	log     *zap.Logger
	chapter *reader.Chapter
	paras   []reader.Paragraph
	key     string

	reveal  *reveal.Controller
	unsub   func()
	heights *bridge.Negotiator
	tracker *progress.Tracker
	header  *header.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	settings    state.Settings
	surfaces    map[int]*bridge.Surface
	lastPercent int
	closed      bool

	closeOnce sync.Once
	closeErr  error
}

type nopView struct{}

func (nopView) ScrollTo(float64, bool)          {}
func (nopView) SetParagraphHeight(int, float64) {}
func (nopView) SetHeader(Header)                {}

// ProgressKey is the record key of a chapter of a book.
func ProgressKey(bookID, chapterID string) string {
	return bookID + "/" + chapterID
}

// Mount loads the chapter and wires a new screen. A load failure is returned
// to the caller, which shows its failed state.
func Mount(ctx context.Context, opts Options) (*Screen, error) {
	if opts.Loader == nil {
		return nil, errors.New("session: no chapter loader")
	}
	if opts.View == nil {
		opts.View = nopView{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Tuning == (Tuning{}) {
		opts.Tuning = DefaultTuning()
	}
	if opts.Endpoint == nil {
		opts.Endpoint = func(int) string { return "" }
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("book", opts.BookID), zap.String("chapter", opts.ChapterID))

	ch, err := opts.Loader.LoadChapter(ctx, opts.BookID, opts.ChapterID)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", ProgressKey(opts.BookID, opts.ChapterID), err)
	}

	settings := state.DefaultSettings()
	if opts.Settings != nil {
		settings = opts.Settings.Current()
	}

	s := &Screen{
		opts:        opts,
		log:         log,
		chapter:     ch,
		paras:       ch.Paragraphs(),
		key:         ProgressKey(opts.BookID, opts.ChapterID),
		reveal:      reveal.New(),
		settings:    settings,
		surfaces:    make(map[int]*bridge.Surface),
		lastPercent: -1,
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.unsub = s.reveal.Subscribe(s.onReveal)
	s.heights = bridge.NewNegotiator(opts.Tuning.MinHeight, opts.Tuning.HeightPadding, opts.View.SetParagraphHeight)

	save := func(int) {}
	if opts.Progress != nil {
		save = func(index int) { opts.Progress.SaveAsync(s.key, index) }
	}
	s.tracker = progress.New(progress.Options{
		RowHeight:    opts.Tuning.RowHeight,
		Stride:       opts.Tuning.Stride,
		Interval:     opts.Tuning.ProgressInterval,
		SettleDelay:  opts.Tuning.RestoreDelay,
		SegmentCount: len(ch.Segments),
		Clock:        opts.Clock,
		Logger:       log,
		Save:         save,
		ScrollTo:     opts.View.ScrollTo,
	})
	s.header = header.New(header.Options{
		HideDelay:    opts.Tuning.HideDelay,
		HintDuration: opts.Tuning.HintDuration,
		Clock:        opts.Clock,
		OnChange:     func(header.Snapshot) { s.publishHeader() },
	})
	s.header.SetImmersive(settings.ViewMode == state.Immersive)

	if !opts.Fresh && opts.Progress != nil {
		p, ok, err := opts.Progress.Load(ctx, s.key)
		switch {
		case err != nil:
			log.Warn("Unable to load progress", zap.Error(err))
		case ok:
			if idx, armed := s.tracker.Restore(p.SegmentIndex); armed {
				log.Debug("Restoring position", zap.Int("segment", idx))
			}
		}
	}

	log.Info("Chapter mounted", zap.Int("segments", len(ch.Segments)), zap.Int("paragraphs", len(s.paras)))
	return s, nil
}

// Chapter returns the mounted chapter.
func (s *Screen) Chapter() *reader.Chapter { return s.chapter }

// Paragraphs returns the paragraphs of the chapter in order.
func (s *Screen) Paragraphs() []reader.Paragraph { return s.paras }

// Key returns the progress record key of the screen.
func (s *Screen) Key() string { return s.key }

// Settings returns the settings the screen renders with.
func (s *Screen) Settings() state.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Revealed returns the revealed segment id, or "".
func (s *Screen) Revealed() string {
	id, _ := s.reveal.Current()
	return id
}

// Height returns the negotiated height of paragraph index.
func (s *Screen) Height(index int) (float64, bool) {
	return s.heights.Height(index)
}

// Header returns the current chrome state.
func (s *Screen) Header() Header {
	snap := s.header.Snapshot()
	h := Header{Snapshot: snap, Percent: s.tracker.Percent()}
	if snap.HintShown {
		h.Hint = header.HintText
	}
	return h
}

func (s *Screen) publishHeader() {
	s.opts.View.SetHeader(s.Header())
}

func (s *Screen) paragraph(index int) (reader.Paragraph, error) {
	if index < 0 || index >= len(s.paras) {
		return reader.Paragraph{}, fmt.Errorf("%w: %d", ErrNoParagraph, index)
	}
	return s.paras[index], nil
}

// spawn runs f on the screen's context unless the screen is closed.
func (s *Screen) spawn(f func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f(s.ctx)
	}()
	return true
}

// Attach connects the surface rendering paragraph index through tr and
// brings it up to date. A surface already attached to index is replaced.
func (s *Screen) Attach(index int, tr bridge.Transport) (*bridge.Surface, error) {
	para, err := s.paragraph(index)
	if err != nil {
		return nil, err
	}
	surf := bridge.NewSurface(para, tr, bridge.SurfaceOptions{Logger: s.log, Deliver: s.Deliver})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	old := s.surfaces[index]
	s.surfaces[index] = surf
	settings := s.settings
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	surf.SetFont(FontFor(settings))
	surf.SetTheme(PaletteFor(settings.Theme, s.opts.SystemDark))
	surf.Sync(s.Revealed(), PresentationFor(settings))

	ok := s.spawn(func(ctx context.Context) {
		if err := surf.Run(ctx); err != nil {
			s.log.Debug("Surface stopped", zap.Int("paragraph", index), zap.Error(err))
		}
		s.detach(index, surf)
	})
	if !ok {
		surf.Close()
		return nil, ErrClosed
	}
	return surf, nil
}

func (s *Screen) detach(index int, surf *bridge.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.surfaces[index] == surf {
		delete(s.surfaces, index)
	}
}

// AttachSandbox starts an in-process surface of the given width for
// paragraph index and attaches it.
func (s *Screen) AttachSandbox(index, width int) (*bridge.Sandbox, error) {
	para, err := s.paragraph(index)
	if err != nil {
		return nil, err
	}
	sb := bridge.NewSandbox(para, bridge.SandboxOptions{
		Width:           width,
		First:           index == 0,
		Clock:           s.opts.Clock,
		DoubleTapWindow: s.opts.Tuning.DoubleTap,
		FontSettle:      s.opts.Tuning.FontSettle,
		Logger:          s.log,
	})
	if _, err := s.Attach(index, sb.Transport()); err != nil {
		return nil, err
	}
	ok := s.spawn(func(ctx context.Context) {
		if err := sb.Run(ctx); err != nil {
			s.log.Debug("Sandbox stopped", zap.Int("paragraph", index), zap.Error(err))
		}
	})
	if !ok {
		sb.Transport().Close()
		return nil, ErrClosed
	}
	return sb, nil
}

// Deliver routes a message from the surface of paragraph index.
func (s *Screen) Deliver(index int, m bridge.Message) {
	switch m.Type {
	case bridge.TypeSegmentTap:
		s.TapSegment(m.SegmentID)
	case bridge.TypeDoubleTap:
		s.ToggleHeader()
	case bridge.TypeHeight:
		s.heights.Report(index, m.Height)
	case bridge.TypeFrame:
		if fv, ok := s.opts.View.(FrameView); ok && m.Frame != nil {
			fv.SetFrame(index, *m.Frame)
		}
	}
}

// TapSegment toggles the reveal of segment id.
func (s *Screen) TapSegment(id string) reveal.Change {
	return s.reveal.Toggle(id)
}

// ToggleHeader handles a double tap.
func (s *Screen) ToggleHeader() {
	s.header.Toggle()
}

// onReveal pushes the current reveal state to every surface. It reads the
// controller instead of the change so late notifications cannot roll a
// surface back.
func (s *Screen) onReveal(reveal.Change) {
	cur := s.Revealed()
	s.mu.Lock()
	surfaces := s.attached()
	p := PresentationFor(s.settings)
	s.mu.Unlock()

	for _, surf := range surfaces {
		surf.Sync(cur, p)
	}
	if rv, ok := s.opts.View.(RevealView); ok {
		rv.SetRevealed(cur)
	}
}

// attached lists the surfaces. Called with s.mu held.
func (s *Screen) attached() []*bridge.Surface {
	out := make([]*bridge.Surface, 0, len(s.surfaces))
	for _, surf := range s.surfaces {
		out = append(out, surf)
	}
	return out
}

// Scroll feeds a new scroll offset to the progress tracker and the header.
func (s *Screen) Scroll(offset float64) {
	s.tracker.OnScroll(offset)
	s.header.Touch()

	pct := s.tracker.Percent()
	s.mu.Lock()
	changed := pct != s.lastPercent
	s.lastPercent = pct
	s.mu.Unlock()
	if changed {
		s.publishHeader()
	}
}

// ApplySettings changes the settings, persists them and restyles the live
// surfaces in place.
func (s *Screen) ApplySettings(f func(*state.Settings)) state.Settings {
	var next state.Settings
	if s.opts.Settings != nil {
		next = s.opts.Settings.Update(f)
	} else {
		next = s.Settings()
		f(&next)
		next = next.Normalize()
	}

	s.mu.Lock()
	prev := s.settings
	s.settings = next
	surfaces := s.attached()
	s.mu.Unlock()

	fontChanged := prev.FontFamily != next.FontFamily || prev.FontSize != next.FontSize || prev.LineHeight != next.LineHeight
	themeChanged := prev.Theme != next.Theme
	styleChanged := prev.TranslationStyle != next.TranslationStyle
	cur := s.Revealed()
	for _, surf := range surfaces {
		if fontChanged {
			surf.SetFont(FontFor(next))
		}
		if themeChanged {
			surf.SetTheme(PaletteFor(next.Theme, s.opts.SystemDark))
		}
		if styleChanged {
			surf.Sync(cur, PresentationFor(next))
		}
	}
	if prev.ViewMode != next.ViewMode {
		s.header.SetImmersive(next.ViewMode == state.Immersive)
	}
	return next
}

// Document renders the browser surface document of paragraph index with the
// current settings and reveal state.
func (s *Screen) Document(index int) ([]byte, error) {
	para, err := s.paragraph(index)
	if err != nil {
		return nil, err
	}
	settings := s.Settings()
	return bridge.BuildDocument(bridge.DocumentSpec{
		Paragraph:       para,
		First:           index == 0,
		Font:            FontFor(settings),
		Theme:           PaletteFor(settings.Theme, s.opts.SystemDark),
		Justify:         settings.TextAlignment == state.AlignJustify,
		Presentation:    PresentationFor(settings),
		Revealed:        s.Revealed(),
		Endpoint:        s.opts.Endpoint(index),
		DoubleTapWindow: s.opts.Tuning.DoubleTap,
		FontSettle:      s.opts.Tuning.FontSettle,
	})
}

// Close tears the screen down: the final position is saved, every timer is
// cancelled and every surface is closed. It is safe to call more than once.
func (s *Screen) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		surfaces := s.attached()
		s.surfaces = map[int]*bridge.Surface{}
		s.mu.Unlock()

		s.unsub()
		s.tracker.Close()
		s.header.Close()

		var err error
		for _, surf := range surfaces {
			err = multierr.Append(err, surf.Close())
		}
		s.cancel()
		s.wg.Wait()
		s.closeErr = err
		s.log.Debug("Chapter unmounted", zap.Int("segment", s.tracker.Index()))
	})
	return s.closeErr
}
