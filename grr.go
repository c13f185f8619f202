//go:build gui

package main

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/config"
	"github.com/metcalfc/bivium/internal/header"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
)

// The window leaves the console to the logger.
const readerOwnsConsole = false

const widthPoll = 100 * time.Millisecond

func hexColor(s string) color.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.Black
	}
	return c
}

// paletteTheme paints fyne widgets in the reader palette.
type paletteTheme struct {
	palette bridge.Palette
	size    float32
}

func (t paletteTheme) Color(n fyne.ThemeColorName, _ fyne.ThemeVariant) color.Color {
	switch n {
	case theme.ColorNameBackground:
		return hexColor(t.palette.Background)
	case theme.ColorNameForeground:
		return hexColor(t.palette.GermanText)
	case theme.ColorNamePrimary, theme.ColorNameHyperlink:
		return hexColor(t.palette.Accent)
	case theme.ColorNameSeparator, theme.ColorNameInputBorder:
		return hexColor(t.palette.Border)
	}
	variant := theme.VariantLight
	if t.palette.Name == session.DarkPalette.Name {
		variant = theme.VariantDark
	}
	return theme.DefaultTheme().Color(n, variant)
}

func (t paletteTheme) Font(s fyne.TextStyle) fyne.Resource     { return theme.DefaultTheme().Font(s) }
func (t paletteTheme) Icon(n fyne.ThemeIconName) fyne.Resource { return theme.DefaultTheme().Icon(n) }

func (t paletteTheme) Size(n fyne.ThemeSizeName) float32 {
	if n == theme.SizeNameText && t.size > 0 {
		return t.size
	}
	return theme.DefaultTheme().Size(n)
}

// spanText is one tappable run of a surface frame.
type spanText struct {
	widget.BaseWidget
	text  *canvas.Text
	bg    *canvas.Rectangle
	onTap func()
}

func newSpanText(text string, fg, bg color.Color, size float32, italic bool, onTap func()) *spanText {
	t := canvas.NewText(text, fg)
	t.TextSize = size
	t.TextStyle = fyne.TextStyle{Monospace: true, Italic: italic}
	s := &spanText{text: t, bg: canvas.NewRectangle(bg), onTap: onTap}
	s.ExtendBaseWidget(s)
	return s
}

func (s *spanText) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(container.NewStack(s.bg, s.text))
}

func (s *spanText) Tapped(*fyne.PointEvent) {
	if s.onTap != nil {
		s.onTap()
	}
}

// uiQueue hands screen updates to the fyne main goroutine once the app runs.
type uiQueue struct {
	mu   sync.Mutex
	fns  []func()
	wake chan struct{}
}

func newUIQueue() *uiQueue {
	return &uiQueue{wake: make(chan struct{}, 1)}
}

func (q *uiQueue) push(f func()) {
	q.mu.Lock()
	q.fns = append(q.fns, f)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *uiQueue) pump(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
		q.mu.Lock()
		fns := q.fns
		q.fns = nil
		q.mu.Unlock()
		fyne.Do(func() {
			for _, f := range fns {
				f()
			}
		})
	}
}

// guiView is the screen's host view on the desktop.
type guiView struct{ d *desktop }

func (v guiView) ScrollTo(offset float64, _ bool) {
	v.d.queue.push(func() { v.d.scroll.ScrollToOffset(fyne.NewPos(0, float32(offset))) })
}

func (v guiView) SetParagraphHeight(index int, h float64) {
	v.d.queue.push(func() {
		v.d.heights[index] = int(h)
		v.d.renderParagraph(index)
	})
}

func (v guiView) SetHeader(h session.Header) {
	v.d.queue.push(func() { v.d.showHeader(h) })
}

func (v guiView) SetFrame(index int, f bridge.Frame) {
	v.d.queue.push(func() {
		v.d.frames[index] = f
		v.d.renderParagraph(index)
	})
}

type desktop struct {
	app    fyne.App
	win    fyne.Window
	queue  *uiQueue
	screen *session.Screen
	dark   bool

	settings state.Settings
	palette  bridge.Palette

	title  *widget.Label
	meta   *widget.Label
	hint   *widget.Label
	top    *fyne.Container
	scroll *container.Scroll
	paras  []*fyne.Container

	frames    map[int]bridge.Frame
	heights   map[int]int
	sandboxes map[int]*bridge.Sandbox
	cols      int
}

func newDesktop(a fyne.App) *desktop {
	return &desktop{
		app:       a,
		win:       a.NewWindow("bivium"),
		queue:     newUIQueue(),
		frames:    make(map[int]bridge.Frame),
		heights:   make(map[int]int),
		sandboxes: make(map[int]*bridge.Sandbox),
	}
}

// build lays out the window for a mounted screen.
func (d *desktop) build(scr *session.Screen, dark bool) {
	d.screen = scr
	d.dark = dark
	d.settings = scr.Settings()
	ch := scr.Chapter()

	d.title = widget.NewLabel(ch.Title.In(reader.German))
	d.title.TextStyle.Bold = true
	d.meta = widget.NewLabel(ch.BookTitle.In(reader.German))
	d.meta.Importance = widget.LowImportance
	d.hint = widget.NewLabel(header.HintText)
	d.hint.Alignment = fyne.TextAlignCenter
	d.hint.TextStyle.Italic = true
	d.hint.Hide()
	d.top = container.NewHBox(d.title, layout.NewSpacer(), d.meta)

	body := container.NewVBox()
	for range scr.Paragraphs() {
		box := container.New(layout.NewCustomPaddedVBoxLayout(0))
		d.paras = append(d.paras, box)
		body.Add(box)
	}
	d.scroll = container.NewVScroll(body)
	d.scroll.OnScrolled = func(p fyne.Position) { d.screen.Scroll(float64(p.Y)) }

	d.win.SetContent(container.NewBorder(d.top, d.hint, nil, nil, d.scroll))
	d.win.Resize(fyne.NewSize(800, 600))
	d.win.Canvas().SetOnTypedKey(d.typedKey)
	d.win.Canvas().SetOnTypedRune(d.typedRune)

	d.applyTheme()
	d.showHeader(scr.Header())
	d.renderAll()
}

func (d *desktop) fontSize() float32 {
	return float32(d.settings.FontSize)
}

func (d *desktop) applyTheme() {
	d.palette = session.PaletteFor(d.settings.Theme, d.dark)
	d.app.Settings().SetTheme(paletteTheme{palette: d.palette, size: d.fontSize()})
}

func (d *desktop) showHeader(h session.Header) {
	if h.Visibility == header.Visible {
		d.meta.SetText(fmt.Sprintf("%s · %d%%", d.screen.Chapter().BookTitle.In(reader.German), h.Percent))
		d.top.Show()
	} else {
		d.top.Hide()
	}
	if h.Hint != "" {
		d.hint.SetText(h.Hint)
		d.hint.Show()
	} else {
		d.hint.Hide()
	}
}

func (d *desktop) typedKey(ev *fyne.KeyEvent) {
	switch ev.Name {
	case fyne.KeyF:
		d.win.SetFullScreen(!d.win.FullScreen())
	case fyne.KeyQ, fyne.KeyEscape:
		d.app.Quit()
	}
}

func (d *desktop) typedRune(r rune) {
	switch r {
	case 'h', 'H':
		d.screen.ToggleHeader()
	case 'm', 'M':
		d.update(func(s *state.Settings) { s.ViewMode = nextOf(state.ViewModes, s.ViewMode) })
	case 's', 'S':
		d.update(func(s *state.Settings) {
			s.TranslationStyle = nextOf([]state.TranslationStyle{state.StyleInline, state.StyleTooltip}, s.TranslationStyle)
		})
	case 't', 'T':
		d.update(func(s *state.Settings) {
			s.Theme = nextOf([]state.Theme{state.ThemeSystem, state.ThemeLight, state.ThemeDark}, s.Theme)
		})
	case '+', '=':
		d.update(func(s *state.Settings) { s.FontSize = stepSize(s.FontSize, true) })
	case '-':
		d.update(func(s *state.Settings) { s.FontSize = stepSize(s.FontSize, false) })
	}
}

func (d *desktop) update(f func(*state.Settings)) {
	d.settings = d.screen.ApplySettings(f)
	d.applyTheme()
	d.cols = 0
	d.syncSandboxes()
	d.renderAll()
}

// columns is the surface width in monospace cells.
func (d *desktop) columns() int {
	w := d.scroll.Size().Width - 2*theme.Padding()
	cw := fyne.MeasureText("M", d.fontSize(), fyne.TextStyle{Monospace: true}).Width
	if cw <= 0 {
		return 20
	}
	return max(20, int(w/cw))
}

// syncSandboxes starts a surface per paragraph in immersive mode and resizes
// them when the window width changes.
func (d *desktop) syncSandboxes() {
	if d.screen == nil || d.settings.ViewMode != state.Immersive {
		return
	}
	cols := d.columns()
	if cols == d.cols {
		return
	}
	d.cols = cols
	for i := range d.screen.Paragraphs() {
		if sb, ok := d.sandboxes[i]; ok {
			sb.Resize(cols)
			continue
		}
		sb, err := d.screen.AttachSandbox(i, cols)
		if err != nil {
			return
		}
		d.sandboxes[i] = sb
	}
}

func (d *desktop) watchWidth(ctx context.Context, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-ctx.Done():
		return
	}
	t := time.NewTicker(widthPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fyne.Do(d.syncSandboxes)
		}
	}
}

func (d *desktop) tap(id string) {
	for _, p := range d.screen.Paragraphs() {
		if !p.Contains(id) {
			continue
		}
		if sb, ok := d.sandboxes[p.Index]; ok {
			sb.Tap(id)
			return
		}
	}
	d.screen.TapSegment(id)
}

func (d *desktop) label(text string, spanish bool) fyne.CanvasObject {
	l := widget.NewLabel(text)
	l.Wrapping = fyne.TextWrapWord
	if spanish {
		l.Importance = widget.LowImportance
		l.TextStyle.Italic = true
	}
	return l
}

func (d *desktop) span(sp bridge.Span) fyne.CanvasObject {
	fg, bg := hexColor(d.palette.GermanText), color.Color(color.Transparent)
	italic := false
	switch sp.Role {
	case bridge.RoleRevealed:
		bg = hexColor(d.palette.Highlight)
	case bridge.RoleTooltip:
		bg = hexColor(d.palette.Border)
	case bridge.RoleTranslation:
		fg = hexColor(d.palette.Accent)
		italic = true
	}
	var onTap func()
	if id := sp.SegmentID; id != "" && sp.Role != bridge.RoleTranslation {
		onTap = func() { d.tap(id) }
	}
	return newSpanText(sp.Text, fg, bg, d.fontSize(), italic, onTap)
}

func (d *desktop) line(l bridge.Line) fyne.CanvasObject {
	row := container.New(layout.NewCustomPaddedHBoxLayout(0))
	if l.Indent > 0 {
		row.Add(d.span(bridge.Span{Text: strings.Repeat(" ", l.Indent)}))
	}
	for _, sp := range l.Spans {
		row.Add(d.span(sp))
	}
	if len(row.Objects) == 0 {
		row.Add(d.span(bridge.Span{Text: " "}))
	}
	return row
}

func (d *desktop) renderParagraph(i int) {
	if i < 0 || i >= len(d.paras) {
		return
	}
	p := d.screen.Paragraphs()[i]
	var objs []fyne.CanvasObject
	switch d.settings.ViewMode {
	case state.Immersive:
		f, ok := d.frames[i]
		if !ok {
			objs = append(objs, d.label(p.Text(reader.German), false))
			break
		}
		for _, l := range f.Lines {
			objs = append(objs, d.line(l))
		}
		for n := len(f.Lines); n < d.heights[i]; n++ {
			objs = append(objs, d.line(bridge.Line{}))
		}
	case state.GermanOnly:
		objs = append(objs, d.label(p.Text(reader.German), false))
	case state.SpanishOnly:
		objs = append(objs, d.label(p.Text(reader.Spanish), true))
	default:
		objs = append(objs, d.label(p.Text(reader.German), false), d.label(p.Text(reader.Spanish), true))
	}
	d.paras[i].Objects = objs
	d.paras[i].Refresh()
}

func (d *desktop) renderAll() {
	for i := range d.paras {
		d.renderParagraph(i)
	}
}

// desktopTuning keeps pixel rows but takes surface heights in lines.
func desktopTuning(cfg *config.Config) session.Tuning {
	t := pixelTuning(cfg.Reader)
	t.MinHeight = 1
	t.HeightPadding = 0
	return t
}

func runReader(ctx context.Context, e *env, bookID, chapterID string, fresh bool) error {
	a := app.NewWithID("io.github.metcalfc.bivium")
	d := newDesktop(a)
	dark := a.Settings().ThemeVariant() == theme.VariantDark

	scr, err := session.Mount(ctx, session.Options{
		BookID:     bookID,
		ChapterID:  chapterID,
		Loader:     e.library,
		Progress:   e.progress,
		Settings:   e.settings,
		View:       guiView{d: d},
		Logger:     e.log,
		Fresh:      fresh,
		SystemDark: dark,
		Tuning:     desktopTuning(e.cfg),
	})
	if err != nil {
		return fmt.Errorf("unable to open chapter: %w", err)
	}
	d.build(scr, dark)
	d.win.SetTitle(fmt.Sprintf("%s · bivium", scr.Chapter().Title.In(reader.German)))

	runCtx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	a.Lifecycle().SetOnStarted(func() {
		close(ready)
		d.syncSandboxes()
	})
	go d.queue.pump(runCtx, ready)
	go d.watchWidth(runCtx, ready)
	go func() {
		select {
		case <-ctx.Done():
			fyne.Do(a.Quit)
		case <-runCtx.Done():
		}
	}()

	d.win.ShowAndRun()
	cancel()
	return scr.Close()
}
