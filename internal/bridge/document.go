package bridge

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/metcalfc/bivium/internal/reader"
)

//go:embed assets/surface.css
var surfaceCSS string

//go:embed assets/surface.js
var surfaceJS string

// DocumentSpec is everything a browser surface needs at construction time.
// Later changes arrive as commands.
type DocumentSpec struct {
	Paragraph       reader.Paragraph
	First           bool // paragraph opens the chapter
	Font            FontSpec
	Theme           Palette
	Justify         bool
	Presentation    Presentation
	Revealed        string
	Endpoint        string // websocket path the surface reports to
	DoubleTapWindow time.Duration
	FontSettle      time.Duration
}

// BuildDocument renders the static HTML document of one paragraph surface.
func BuildDocument(spec DocumentSpec) ([]byte, error) {
	layout, err := json.Marshal(map[string]float64{
		"width":   WebTooltip.Width,
		"margin":  WebTooltip.Margin,
		"gap":     WebTooltip.Gap,
		"lift":    WebTooltip.Lift,
		"topZone": WebTooltip.TopZone,
	})
	if err != nil {
		return nil, err
	}

	doc := &html.Node{Type: html.DocumentNode}
	doc.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})

	root := element(atom.Html, "lang", "de", "style", cssVars(spec.Font, spec.Theme))
	doc.AppendChild(root)

	head := element(atom.Head)
	head.AppendChild(element(atom.Meta, "charset", "utf-8"))
	head.AppendChild(element(atom.Meta, "name", "viewport", "content", "width=device-width, initial-scale=1.0"))
	style := element(atom.Style)
	style.AppendChild(&html.Node{Type: html.TextNode, Data: surfaceCSS})
	head.AppendChild(style)
	root.AppendChild(head)

	presentation := spec.Presentation
	if !presentation.Valid() {
		presentation = Inline
	}
	align := "align-left"
	if spec.Justify {
		align = "align-justify"
	}
	body := element(atom.Body,
		"class", align,
		"data-endpoint", spec.Endpoint,
		"data-presentation", string(presentation),
		"data-revealed", revealedIn(spec.Paragraph, spec.Revealed),
		"data-double-tap", millis(spec.DoubleTapWindow, DefaultDoubleTapWindow),
		"data-font-settle", millis(spec.FontSettle, DefaultFontSettle),
		"data-tooltip", string(layout),
	)
	root.AppendChild(body)

	p := element(atom.P, "class", "paragraph")
	for i, seg := range spec.Paragraph.Segments {
		text := seg.Text(reader.German)
		if i < len(spec.Paragraph.Segments)-1 {
			text += " "
		}
		pos := "normal"
		if spec.First && i < StartSegments {
			pos = "start"
		}
		span := element(atom.Span,
			"class", "s",
			"id", "s-"+seg.ID,
			"data-id", seg.ID,
			"data-pos", pos,
			"data-translation", seg.Text(reader.Spanish),
		)
		span.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		p.AppendChild(span)

		t := element(atom.I, "class", "t", "id", "t-"+seg.ID)
		t.AppendChild(&html.Node{Type: html.TextNode, Data: seg.Text(reader.Spanish)})
		p.AppendChild(t)
	}
	body.AppendChild(p)

	tip := element(atom.Div, "class", "tooltip", "id", "active-tooltip")
	tip.AppendChild(element(atom.Span, "class", "tooltip-text"))
	body.AppendChild(tip)

	script := element(atom.Script)
	script.AppendChild(&html.Node{Type: html.TextNode, Data: surfaceJS})
	body.AppendChild(script)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("render surface document: %w", err)
	}
	return buf.Bytes(), nil
}

func element(a atom.Atom, kv ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(kv); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: kv[i], Val: kv[i+1]})
	}
	return n
}

func cssVars(f FontSpec, p Palette) string {
	family := append([]string{"'" + f.Family + "'"}, f.Fallback...)
	vars := [][2]string{
		{"--font-family", strings.Join(family, ", ")},
		{"--font-size", strconv.FormatFloat(f.Size, 'f', -1, 64) + "px"},
		{"--line-height", strconv.FormatFloat(f.LineHeight, 'f', -1, 64)},
		{"--background", p.Background},
		{"--surface", p.Surface},
		{"--border", p.Border},
		{"--german-text", p.GermanText},
		{"--spanish-text", p.SpanishText},
		{"--highlight", p.Highlight},
		{"--accent", p.Accent},
	}
	var sb strings.Builder
	for _, v := range vars {
		fmt.Fprintf(&sb, "%s: %s; ", v[0], v[1])
	}
	return strings.TrimSpace(sb.String())
}

func revealedIn(p reader.Paragraph, id string) string {
	if id != "" && p.Contains(id) {
		return id
	}
	return ""
}

func millis(d, def time.Duration) string {
	if d <= 0 {
		d = def
	}
	return strconv.FormatInt(d.Milliseconds(), 10)
}
