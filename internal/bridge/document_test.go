package bridge

import (
	"bytes"
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/metcalfc/bivium/internal/reader"
)

func testParagraph() reader.Paragraph {
	return reader.Paragraph{Index: 0, Segments: []reader.Segment{
		{ID: "s1", German: []string{"Der", "Hund"}, Spanish: []string{"El", "perro"}, IsParagraphStart: true},
		{ID: "s2", German: []string{"bellt", "<script>alert(1)</script>"}, Spanish: []string{"ladra", `"fuerte"`}},
	}}
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func TestBuildDocument(t *testing.T) {
	data, err := BuildDocument(DocumentSpec{
		Paragraph:    testParagraph(),
		First:        true,
		Font:         FontSpec{Name: "lora", Family: "Lora", Fallback: []string{"Georgia", "serif"}, Size: 18, LineHeight: 1.6},
		Theme:        Palette{Name: "light", Background: "#FDFBF7", GermanText: "#1A1A1A"},
		Presentation: Tooltip,
		Revealed:     "s2",
		Endpoint:     "/ws/abc/0",
	})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("document does not parse: %v", err)
	}

	if n := len(findAll(doc, "script")); n != 1 {
		t.Errorf("script elements = %d, want 1 (segment text must be escaped)", n)
	}

	var segs []*html.Node
	for _, s := range findAll(doc, "span") {
		if attrOf(s, "class") == "s" {
			segs = append(segs, s)
		}
	}
	if len(segs) != 2 {
		t.Fatalf("segment spans = %d, want 2", len(segs))
	}
	if got := attrOf(segs[0], "data-pos"); got != "start" {
		t.Errorf("first paragraph segment data-pos = %q", got)
	}
	if got := attrOf(segs[1], "data-translation"); got != `ladra "fuerte"` {
		t.Errorf("data-translation = %q", got)
	}
	if got := segs[0].FirstChild.Data; got != "Der Hund " {
		t.Errorf("segment text = %q", got)
	}

	if n := len(findAll(doc, "i")); n != 2 {
		t.Errorf("inline translation nodes = %d, want 2", n)
	}

	body := findAll(doc, "body")[0]
	for key, want := range map[string]string{
		"data-endpoint":     "/ws/abc/0",
		"data-presentation": "tooltip",
		"data-revealed":     "s2",
		"data-double-tap":   "300",
		"data-font-settle":  "250",
		"class":             "align-left",
	} {
		if got := attrOf(body, key); got != want {
			t.Errorf("body %s = %q, want %q", key, got, want)
		}
	}

	style := attrOf(findAll(doc, "html")[0], "style")
	for _, want := range []string{"--font-family: 'Lora', Georgia, serif;", "--font-size: 18px;", "--background: #FDFBF7;"} {
		if !strings.Contains(style, want) {
			t.Errorf("root style %q missing %q", style, want)
		}
	}
}

func TestBuildDocumentRevealElsewhere(t *testing.T) {
	data, err := BuildDocument(DocumentSpec{Paragraph: testParagraph(), Revealed: "s9", Justify: true})
	if err != nil {
		t.Fatal(err)
	}
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	body := findAll(doc, "body")[0]
	if got := attrOf(body, "data-revealed"); got != "" {
		t.Errorf("data-revealed = %q for a segment outside the paragraph", got)
	}
	if got := attrOf(body, "data-presentation"); got != "inline" {
		t.Errorf("default presentation = %q", got)
	}
	if got := attrOf(body, "class"); got != "align-justify" {
		t.Errorf("class = %q", got)
	}
	for _, s := range findAll(doc, "span") {
		if attrOf(s, "data-pos") == "start" {
			t.Errorf("segment %s marked start outside the first paragraph", attrOf(s, "data-id"))
		}
	}
}
