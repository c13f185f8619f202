package bridge

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"
)

// SpanRole tells a host how to paint a span of a frame.
type SpanRole string

const (
	RoleText        SpanRole = "text"
	RoleRevealed    SpanRole = "revealed"
	RoleTranslation SpanRole = "translation"
	RoleTooltip     SpanRole = "tooltip"
)

// Span is a run of text belonging to at most one segment.
type Span struct {
	Text      string   `json:"text"`
	Role      SpanRole `json:"role"`
	SegmentID string   `json:"segmentId,omitempty"`
}

// Line is one row of a frame, shifted right by Indent cells.
type Line struct {
	Indent int    `json:"indent,omitempty"`
	Spans  []Span `json:"spans"`
}

// Width returns the number of cells the line occupies.
func (l Line) Width() int {
	w := l.Indent
	for _, s := range l.Spans {
		w += runewidth.StringWidth(s.Text)
	}
	return w
}

// String returns the line as plain text.
func (l Line) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", l.Indent))
	for _, s := range l.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// Frame is the rendered content of an in-process surface, in terminal cells.
type Frame struct {
	Width int    `json:"width"`
	Theme string `json:"theme,omitempty"`
	Lines []Line `json:"lines"`
}

// Height returns the number of rows.
func (f Frame) Height() int { return len(f.Lines) }

// String returns the frame as plain text, one row per line.
func (f Frame) String() string {
	rows := make([]string, len(f.Lines))
	for i, l := range f.Lines {
		rows[i] = l.String()
	}
	return strings.Join(rows, "\n")
}

type layoutSegment struct {
	id          string
	text        string
	translation string
	start       bool
}

type layoutState struct {
	width        int
	revealed     string
	presentation Presentation
	theme        string
}

// tooltipCols caps the width of a tooltip box in cells.
const tooltipCols = 32

// cellTooltip mirrors WebTooltip for terminal cells.
func cellTooltip(width, rows int) TooltipLayout {
	w := tooltipCols
	if w > width {
		w = width
	}
	return TooltipLayout{Width: float64(w), Gap: 0, Lift: float64(rows), TopZone: 2}
}

// layout wraps the segments greedily at st.width and inserts the revealed
// translation according to the presentation.
func layout(segs []layoutSegment, st layoutState) Frame {
	width := st.width
	if width < 1 {
		width = 1
	}
	f := Frame{Width: width, Theme: st.theme}

	var (
		cur      Line
		curW     int
		firstRow = -1 // first row holding the revealed segment
		lastRow  = -1 // last row holding the revealed segment
		anchorAt int  // column where the revealed segment starts on firstRow
		anchorW  int
		revealed *layoutSegment
	)
	flush := func() {
		f.Lines = append(f.Lines, cur)
		cur, curW = Line{}, 0
	}
	for i := range segs {
		seg := &segs[i]
		role := RoleText
		if seg.id == st.revealed {
			role = RoleRevealed
			revealed = seg
		}
		for _, word := range strings.Fields(seg.text) {
			for _, piece := range splitWord(word, width) {
				pw := runewidth.StringWidth(piece)
				if curW > 0 && curW+1+pw > width {
					flush()
				}
				if curW > 0 {
					cur.Spans[len(cur.Spans)-1].Text += " "
					curW++
				}
				if n := len(cur.Spans); n > 0 && cur.Spans[n-1].SegmentID == seg.id {
					cur.Spans[n-1].Text += piece
				} else {
					cur.Spans = append(cur.Spans, Span{Text: piece, Role: role, SegmentID: seg.id})
				}
				if role == RoleRevealed {
					row := len(f.Lines)
					if firstRow < 0 {
						firstRow, anchorAt = row, curW
					}
					if row == firstRow {
						anchorW = curW + pw - anchorAt
					}
					lastRow = row
				}
				curW += pw
			}
		}
	}
	if curW > 0 || len(f.Lines) == 0 {
		flush()
	}

	if revealed == nil || firstRow < 0 || revealed.translation == "" {
		return f
	}

	if st.presentation == Tooltip {
		return insertTooltip(f, revealed, firstRow, anchorAt, anchorW)
	}

	var extra []Line
	for _, row := range wrapRows(revealed.translation, width-2) {
		extra = append(extra, Line{Indent: 2, Spans: []Span{{Text: row, Role: RoleTranslation, SegmentID: revealed.id}}})
	}
	return withRows(f, lastRow+1, extra)
}

func insertTooltip(f Frame, seg *layoutSegment, row, col, w int) Frame {
	l := cellTooltip(f.Width, 0)
	inner := int(l.Width)
	rows := wrapRows(seg.translation, inner)
	l.Lift = float64(len(rows))

	p := PlaceTooltip(Rect{Left: float64(col), Top: float64(row), Width: float64(w), Height: 1},
		float64(f.Width), seg.start, l)

	box := make([]Line, len(rows))
	for i, r := range rows {
		pad := inner - runewidth.StringWidth(r)
		if pad < 0 {
			pad = 0
		}
		box[i] = Line{Indent: int(p.Left), Spans: []Span{{
			Text: r + strings.Repeat(" ", pad), Role: RoleTooltip, SegmentID: seg.id,
		}}}
	}
	if p.Below {
		return withRows(f, row+1, box)
	}
	return withRows(f, row, box)
}

func withRows(f Frame, at int, rows []Line) Frame {
	lines := make([]Line, 0, len(f.Lines)+len(rows))
	lines = append(lines, f.Lines[:at]...)
	lines = append(lines, rows...)
	lines = append(lines, f.Lines[at:]...)
	f.Lines = lines
	return f
}

// wrapRows breaks text into rows no wider than width cells. Words wider than
// a row are hard-broken.
func wrapRows(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	rows := strings.Split(wrap.String(wordwrap.String(text, width), width), "\n")
	for i, row := range rows {
		rows[i] = strings.TrimSpace(row)
	}
	return rows
}

// splitWord hard-breaks a word wider than width.
func splitWord(word string, width int) []string {
	if runewidth.StringWidth(word) <= width {
		return []string{word}
	}
	var (
		parts []string
		cur   strings.Builder
		curW  int
	)
	for _, r := range word {
		rw := runewidth.RuneWidth(r)
		if curW > 0 && curW+rw > width {
			parts = append(parts, cur.String())
			cur.Reset()
			curW = 0
		}
		cur.WriteRune(r)
		curW += rw
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}
