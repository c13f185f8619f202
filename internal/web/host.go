package web

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/metcalfc/bivium/internal/bridge"
	"github.com/metcalfc/bivium/internal/header"
	"github.com/metcalfc/bivium/internal/reader"
	"github.com/metcalfc/bivium/internal/session"
	"github.com/metcalfc/bivium/internal/state"
)

// hostEvent is sent by the host page.
type hostEvent struct {
	Type      string          `json:"type"` // scroll, doubleTap, tap, settings
	Offset    float64         `json:"offset,omitempty"`
	SegmentID string          `json:"segmentId,omitempty"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

type headerState struct {
	Visible   bool   `json:"visible"`
	Immersive bool   `json:"immersive"`
	Percent   int    `json:"percent"`
	Hint      string `json:"hint,omitempty"`
}

// hostCommand is sent to the host page.
type hostCommand struct {
	Type     string       `json:"type"` // scrollTo, height, header, reload
	Offset   float64      `json:"offset,omitempty"`
	Animated bool         `json:"animated,omitempty"`
	Index    int          `json:"index"`
	Height   float64      `json:"height,omitempty"`
	Header   *headerState `json:"header,omitempty"`
}

const hostQueue = 256

// hostView forwards screen updates to the host page. Updates made before the
// page connects are queued.
type hostView struct {
	log *zap.Logger
	out chan []byte

	mu        sync.Mutex
	connected bool
}

func newHostView(log *zap.Logger) *hostView {
	return &hostView{log: log, out: make(chan []byte, hostQueue)}
}

func (v *hostView) post(cmd hostCommand) {
	data, err := json.Marshal(cmd)
	if err != nil {
		v.log.Warn("Unable to encode host command", zap.String("type", cmd.Type), zap.Error(err))
		return
	}
	select {
	case v.out <- data:
	default:
		v.log.Debug("Dropping host command", zap.String("type", cmd.Type))
	}
}

func (v *hostView) ScrollTo(offset float64, animated bool) {
	v.post(hostCommand{Type: "scrollTo", Offset: offset, Animated: animated})
}

func (v *hostView) SetParagraphHeight(index int, height float64) {
	v.post(hostCommand{Type: "height", Index: index, Height: height})
}

func (v *hostView) SetHeader(h session.Header) {
	v.post(hostCommand{Type: "header", Header: &headerState{
		Visible:   h.Visibility == header.Visible,
		Immersive: h.Immersive,
		Percent:   h.Percent,
		Hint:      h.Hint,
	}})
}

func (v *hostView) reload() {
	v.post(hostCommand{Type: "reload"})
}

// connect marks the page connected. Only one page may drive a screen.
func (v *hostView) connect() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.connected {
		return false
	}
	v.connected = true
	return true
}

func (v *hostView) isConnected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.connected
}

func (v *hostView) writeLoop(ctx context.Context, tr bridge.Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-v.out:
			if err := tr.Send(ctx, data); err != nil {
				v.log.Debug("Host page gone", zap.Error(err))
				return
			}
		}
	}
}

func (s *Server) handleHost(e *entry, data []byte) {
	var ev hostEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.log.Debug("Dropping host message", zap.Error(err))
		return
	}
	switch ev.Type {
	case "scroll":
		e.screen.Scroll(ev.Offset)
	case "doubleTap":
		e.screen.ToggleHeader()
	case "tap":
		e.screen.TapSegment(ev.SegmentID)
	case "settings":
		prev := e.screen.Settings()
		next := e.screen.ApplySettings(func(st *state.Settings) {
			merged, err := state.MergeSettings(*st, ev.Settings)
			if err != nil {
				s.log.Debug("Dropping settings patch", zap.Error(err))
				return
			}
			*st = merged
		})
		// the page layout itself depends on these
		if prev.ViewMode != next.ViewMode || prev.Theme != next.Theme {
			e.view.reload()
		}
	default:
		s.log.Debug("Dropping host message", zap.String("type", ev.Type))
	}
}

type pageParagraph struct {
	Index   int
	German  string
	Spanish string
}

type page struct {
	ScreenID   string
	Title      string
	BookTitle  string
	Theme      bridge.Palette
	ThemeName  state.Theme
	ViewMode   state.ViewMode
	Style      state.TranslationStyle
	Immersive  bool
	MinHeight  float64
	Paragraphs []pageParagraph
	ViewModes  []state.ViewMode
	Styles     []state.TranslationStyle
	Themes     []state.Theme
}

func newPage(id string, scr *session.Screen, tuning session.Tuning) page {
	settings := scr.Settings()
	ch := scr.Chapter()
	p := page{
		ScreenID:  id,
		Title:     ch.Title.In(reader.German),
		BookTitle: ch.BookTitle.In(reader.German),
		Theme:     session.PaletteFor(settings.Theme, false),
		ThemeName: settings.Theme,
		ViewMode:  settings.ViewMode,
		Style:     settings.TranslationStyle,
		Immersive: settings.ViewMode == state.Immersive,
		MinHeight: tuning.MinHeight,
		ViewModes: state.ViewModes,
		Styles:    []state.TranslationStyle{state.StyleInline, state.StyleTooltip},
		Themes:    []state.Theme{state.ThemeSystem, state.ThemeLight, state.ThemeDark},
	}
	if p.MinHeight <= 0 {
		p.MinHeight = bridge.DefaultMinHeight
	}
	for _, para := range scr.Paragraphs() {
		pp := pageParagraph{Index: para.Index}
		if settings.ViewMode != state.SpanishOnly {
			pp.German = para.Text(reader.German)
		}
		if settings.ViewMode != state.GermanOnly {
			pp.Spanish = para.Text(reader.Spanish)
		}
		p.Paragraphs = append(p.Paragraphs, pp)
	}
	return p
}
