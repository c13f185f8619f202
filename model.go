//go:build !gui

package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"go.uber.org/multierr"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/config"
	"github.com/metcalfc/bivium/internal/header"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
)

// The alternate screen owns the terminal while reading.
const readerOwnsConsole = true

const (
	defaultTextWidth = 72
	// one header row above the viewport, one footer row below
	chromeRows = 2
)

// Messages the screen sends to the program.
type (
	scrollToMsg struct{ offset float64 }
	heightMsg   struct {
		index  int
		height float64
	}
	headerMsg struct{ header session.Header }
	frameMsg  struct {
		index int
		frame bridge.Frame
	}
	eventBatch []tea.Msg
)

// events queues screen updates for the program without ever blocking the
// caller, which may be Update itself.
type events struct {
	mu    sync.Mutex
	queue []tea.Msg
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newEvents() *events {
	return &events{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (e *events) push(m tea.Msg) {
	e.mu.Lock()
	e.queue = append(e.queue, m)
	e.mu.Unlock()
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// wait returns a command delivering the next batch of queued updates.
func (e *events) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-e.wake:
		case <-e.done:
			return nil
		}
		e.mu.Lock()
		q := e.queue
		e.queue = nil
		e.mu.Unlock()
		return eventBatch(q)
	}
}

func (e *events) close() {
	e.once.Do(func() { close(e.done) })
}

// teaView is the screen's host view in the terminal.
type teaView struct{ events *events }

func (v teaView) ScrollTo(offset float64, _ bool) {
	v.events.push(scrollToMsg{offset: offset})
}

func (v teaView) SetParagraphHeight(index int, h float64) {
	v.events.push(heightMsg{index: index, height: h})
}

func (v teaView) SetHeader(h session.Header) {
	v.events.push(headerMsg{header: h})
}

func (v teaView) SetFrame(index int, f bridge.Frame) {
	v.events.push(frameMsg{index: index, frame: f})
}

type keyMap struct {
	Quit     key.Binding
	Header   key.Binding
	Mode     key.Binding
	Style    key.Binding
	Theme    key.Binding
	FontUp   key.Binding
	FontDown key.Binding
	Next     key.Binding
	Prev     key.Binding
	Tap      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "salir")),
		Header:   key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "controles")),
		Mode:     key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "modo")),
		Style:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "traducción")),
		Theme:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "tema")),
		FontUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "letra")),
		FontDown: key.NewBinding(key.WithKeys("-")),
		Next:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "siguiente")),
		Prev:     key.NewBinding(key.WithKeys("shift+tab")),
		Tap:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "revelar")),
	}
}

func (k keyMap) help() string {
	var parts []string
	for _, b := range []key.Binding{k.Next, k.Tap, k.Mode, k.Style, k.Theme, k.FontUp, k.Header, k.Quit} {
		if h := b.Help(); h.Key != "" {
			parts = append(parts, h.Key+" "+h.Desc)
		}
	}
	return strings.Join(parts, "  ")
}

type styles struct {
	title       lipgloss.Style
	meta        lipgloss.Style
	german      lipgloss.Style
	spanish     lipgloss.Style
	revealed    lipgloss.Style
	translation lipgloss.Style
	tooltip     lipgloss.Style
	hint        lipgloss.Style
	help        lipgloss.Style
}

func newStyles(p bridge.Palette) styles {
	return styles{
		title:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(p.Accent)),
		meta:        lipgloss.NewStyle().Foreground(lipgloss.Color(p.SpanishText)),
		german:      lipgloss.NewStyle().Foreground(lipgloss.Color(p.GermanText)),
		spanish:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.SpanishText)),
		revealed:    lipgloss.NewStyle().Foreground(lipgloss.Color(p.GermanText)).Background(lipgloss.Color(p.Highlight)),
		translation: lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(p.Accent)),
		tooltip:     lipgloss.NewStyle().Foreground(lipgloss.Color(p.GermanText)).Background(lipgloss.Color(p.Border)),
		hint:        lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color(p.Accent)),
		help:        lipgloss.NewStyle().Foreground(lipgloss.Color(p.SpanishText)),
	}
}

func (s styles) span(role bridge.SpanRole, focused bool) lipgloss.Style {
	var st lipgloss.Style
	switch role {
	case bridge.RoleRevealed:
		st = s.revealed
	case bridge.RoleTranslation:
		st = s.translation
	case bridge.RoleTooltip:
		st = s.tooltip
	default:
		st = s.german
	}
	if focused {
		st = st.Underline(true)
	}
	return st
}

type model struct {
	screen   *session.Screen
	events   *events
	keys     keyMap
	viewport viewport.Model
	styles   styles
	dark     bool
	maxWidth int

	width    int
	height   int
	ready    bool
	settings state.Settings
	header   session.Header

	frames    map[int]bridge.Frame
	heights   map[int]int
	sandboxes map[int]*bridge.Sandbox
	starts    []int // first content line of every paragraph
	focus     int   // focused segment, -1 for none
	offset    int   // last offset reported to the screen
	target    *int  // pending scroll request
	status    string
}

func newModel(scr *session.Screen, ev *events, maxWidth int, dark bool) *model {
	if maxWidth <= 0 {
		maxWidth = defaultTextWidth
	}
	settings := scr.Settings()
	return &model{
		screen:    scr,
		events:    ev,
		keys:      defaultKeyMap(),
		viewport:  viewport.New(80, 22),
		styles:    newStyles(session.PaletteFor(settings.Theme, dark)),
		dark:      dark,
		maxWidth:  maxWidth,
		width:     80,
		height:    24,
		settings:  settings,
		header:    scr.Header(),
		frames:    make(map[int]bridge.Frame),
		heights:   make(map[int]int),
		sandboxes: make(map[int]*bridge.Sandbox),
		focus:     -1,
		offset:    -1,
	}
}

func (m *model) Init() tea.Cmd {
	return m.events.wait()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = max(1, msg.Height-chromeRows)
		m.ready = true
		m.syncSandboxes()
		m.refresh()
		return m, nil

	case eventBatch:
		for _, ev := range msg {
			m.apply(ev)
		}
		m.refresh()
		return m, m.events.wait()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			if id := m.segmentAt(msg.X, msg.Y); id != "" {
				m.tap(id)
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.reportScroll()
		return m, cmd
	}
	return m, nil
}

func (m *model) apply(ev tea.Msg) {
	switch ev := ev.(type) {
	case scrollToMsg:
		off := int(ev.offset)
		m.target = &off
	case heightMsg:
		m.heights[ev.index] = int(ev.height)
	case headerMsg:
		m.header = ev.header
	case frameMsg:
		m.frames[ev.index] = ev.frame
	}
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Header):
		m.screen.ToggleHeader()
	case key.Matches(msg, m.keys.Mode):
		m.update(func(s *state.Settings) { s.ViewMode = nextOf(state.ViewModes, s.ViewMode) })
		m.status = "Modo: " + string(m.settings.ViewMode)
	case key.Matches(msg, m.keys.Style):
		m.update(func(s *state.Settings) {
			s.TranslationStyle = nextOf([]state.TranslationStyle{state.StyleInline, state.StyleTooltip}, s.TranslationStyle)
		})
		m.status = "Traducción: " + string(m.settings.TranslationStyle)
	case key.Matches(msg, m.keys.Theme):
		m.update(func(s *state.Settings) {
			s.Theme = nextOf([]state.Theme{state.ThemeSystem, state.ThemeLight, state.ThemeDark}, s.Theme)
		})
		m.status = "Tema: " + string(m.settings.Theme)
	case key.Matches(msg, m.keys.FontUp), key.Matches(msg, m.keys.FontDown):
		up := key.Matches(msg, m.keys.FontUp)
		m.update(func(s *state.Settings) { s.FontSize = stepSize(s.FontSize, up) })
		m.status = fmt.Sprintf("Tamaño de letra: %.0f", m.settings.FontSize)
	case key.Matches(msg, m.keys.Next):
		m.moveFocus(1)
	case key.Matches(msg, m.keys.Prev):
		m.moveFocus(-1)
	case key.Matches(msg, m.keys.Tap):
		if segs := m.screen.Chapter().Segments; m.focus >= 0 && m.focus < len(segs) {
			m.tap(segs[m.focus].ID)
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.reportScroll()
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m *model) update(f func(*state.Settings)) {
	m.settings = m.screen.ApplySettings(f)
	m.styles = newStyles(session.PaletteFor(m.settings.Theme, m.dark))
	m.syncSandboxes()
}

func (m *model) immersive() bool {
	return m.settings.ViewMode == state.Immersive
}

func (m *model) textWidth() int {
	w := min(m.width-4, m.maxWidth)
	return max(w, 10)
}

func (m *model) margin() int {
	return max(0, (m.width-m.textWidth())/2)
}

// syncSandboxes starts a surface per paragraph in immersive mode and keeps
// their width in line with the terminal.
func (m *model) syncSandboxes() {
	if !m.ready || !m.immersive() {
		return
	}
	w := m.textWidth()
	for i := range m.screen.Paragraphs() {
		if sb, ok := m.sandboxes[i]; ok {
			sb.Resize(w)
			continue
		}
		sb, err := m.screen.AttachSandbox(i, w)
		if err != nil {
			m.status = err.Error()
			return
		}
		m.sandboxes[i] = sb
	}
}

// tap sends a tap to the surface showing id, which decides between a tap
// and a double tap.
func (m *model) tap(id string) {
	if !m.immersive() {
		return
	}
	for _, p := range m.screen.Paragraphs() {
		if !p.Contains(id) {
			continue
		}
		if sb, ok := m.sandboxes[p.Index]; ok {
			sb.Tap(id)
			return
		}
	}
	m.screen.TapSegment(id)
}

func (m *model) focusID() string {
	segs := m.screen.Chapter().Segments
	if m.focus < 0 || m.focus >= len(segs) {
		return ""
	}
	return segs[m.focus].ID
}

func (m *model) moveFocus(delta int) {
	if !m.immersive() {
		return
	}
	n := len(m.screen.Chapter().Segments)
	if n == 0 {
		return
	}
	switch {
	case m.focus < 0 && delta > 0:
		m.focus = 0
	case m.focus < 0:
		m.focus = n - 1
	default:
		m.focus = (m.focus + delta + n) % n
	}
	m.refresh()
	if line, ok := m.lineOf(m.focusID()); ok {
		if line < m.viewport.YOffset || line >= m.viewport.YOffset+m.viewport.Height {
			m.viewport.SetYOffset(line)
			m.reportScroll()
		}
	}
}

// lineOf returns the first content line showing segment id.
func (m *model) lineOf(id string) (int, bool) {
	for _, p := range m.screen.Paragraphs() {
		if !p.Contains(id) || p.Index >= len(m.starts) {
			continue
		}
		f, ok := m.frames[p.Index]
		if !ok {
			return m.starts[p.Index], true
		}
		for r, l := range f.Lines {
			for _, sp := range l.Spans {
				if sp.SegmentID == id {
					return m.starts[p.Index] + r, true
				}
			}
		}
	}
	return 0, false
}

func (m *model) reportScroll() {
	if off := m.viewport.YOffset; off != m.offset {
		m.offset = off
		m.screen.Scroll(float64(off))
	}
}

// segmentAt maps a mouse position to the segment painted there.
func (m *model) segmentAt(x, y int) string {
	if !m.immersive() {
		return ""
	}
	row := y - 1
	if row < 0 || row >= m.viewport.Height {
		return ""
	}
	line := m.viewport.YOffset + row
	i := sort.Search(len(m.starts), func(k int) bool { return m.starts[k] > line }) - 1
	if i < 0 {
		return ""
	}
	f, ok := m.frames[i]
	r := line - m.starts[i]
	if !ok || r >= len(f.Lines) {
		return ""
	}
	col := x - m.margin()
	l := f.Lines[r]
	pos := l.Indent
	for _, sp := range l.Spans {
		w := runewidth.StringWidth(sp.Text)
		if col >= pos && col < pos+w {
			return sp.SegmentID
		}
		pos += w
	}
	return ""
}

func (m *model) renderText(text string, width int, st lipgloss.Style) []string {
	var out []string
	for _, l := range strings.Split(wordwrap.String(text, width), "\n") {
		out = append(out, st.Render(l))
	}
	return out
}

func (m *model) renderSurface(p reader.Paragraph, width int) []string {
	f, ok := m.frames[p.Index]
	if !ok {
		return m.renderText(p.Text(reader.German), width, m.styles.german)
	}
	focus := m.focusID()
	out := make([]string, 0, len(f.Lines))
	for _, l := range f.Lines {
		var sb strings.Builder
		sb.WriteString(strings.Repeat(" ", l.Indent))
		for _, sp := range l.Spans {
			focused := focus != "" && sp.SegmentID == focus && sp.Role != bridge.RoleTranslation
			sb.WriteString(m.styles.span(sp.Role, focused).Render(sp.Text))
		}
		out = append(out, sb.String())
	}
	for len(out) < m.heights[p.Index] {
		out = append(out, "")
	}
	return out
}

// refresh rebuilds the viewport content and applies a pending scroll.
func (m *model) refresh() {
	pad := strings.Repeat(" ", m.margin())
	w := m.textWidth()
	var lines []string
	m.starts = m.starts[:0]
	for _, p := range m.screen.Paragraphs() {
		m.starts = append(m.starts, len(lines))
		var block []string
		switch m.settings.ViewMode {
		case state.Immersive:
			block = m.renderSurface(p, w)
		case state.GermanOnly:
			block = m.renderText(p.Text(reader.German), w, m.styles.german)
		case state.SpanishOnly:
			block = m.renderText(p.Text(reader.Spanish), w, m.styles.spanish)
		default:
			block = append(m.renderText(p.Text(reader.German), w, m.styles.german),
				m.renderText(p.Text(reader.Spanish), w, m.styles.spanish)...)
		}
		for _, l := range block {
			lines = append(lines, pad+l)
		}
		lines = append(lines, "")
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))

	if m.target != nil && m.ready {
		m.viewport.SetYOffset(*m.target)
		m.target = nil
		m.reportScroll()
	}
}

func (m *model) View() string {
	if !m.ready {
		return "Cargando capítulo…"
	}
	ch := m.screen.Chapter()

	top := ""
	if m.header.Visibility == header.Visible {
		top = m.styles.title.Render(ch.Title.In(reader.German)) + "  " +
			m.styles.meta.Render(fmt.Sprintf("%s · %d%%", ch.BookTitle.In(reader.German), m.header.Percent))
	}

	var bottom string
	switch {
	case m.header.Hint != "":
		bottom = m.styles.hint.Render(m.header.Hint)
	case m.status != "":
		bottom = m.styles.help.Render(m.status)
	case m.header.Visibility == header.Visible:
		bottom = m.styles.help.Render(m.keys.help())
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, m.viewport.View(), bottom)
}

// terminalTuning measures rows in lines instead of pixels.
func terminalTuning(cfg *config.Config) session.Tuning {
	t := pixelTuning(cfg.Reader)
	t.RowHeight = float64(cfg.Terminal.RowHeight)
	t.MinHeight = 1
	t.HeightPadding = 0
	return t
}

func runReader(ctx context.Context, e *env, bookID, chapterID string, fresh bool) error {
	ev := newEvents()
	defer ev.close()

	dark := lipgloss.HasDarkBackground()
	scr, err := session.Mount(ctx, session.Options{
		BookID:     bookID,
		ChapterID:  chapterID,
		Loader:     e.library,
		Progress:   e.progress,
		Settings:   e.settings,
		View:       teaView{events: ev},
		Logger:     e.log,
		Fresh:      fresh,
		SystemDark: dark,
		Tuning:     terminalTuning(e.cfg),
	})
	if err != nil {
		return fmt.Errorf("unable to open chapter: %w", err)
	}

	p := tea.NewProgram(newModel(scr, ev, e.cfg.Terminal.Width, dark),
		tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err = p.Run()
	ev.close()
	if errors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	return multierr.Append(err, scr.Close())
}
