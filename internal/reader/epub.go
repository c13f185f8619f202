package reader

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"
)

// EPUBFormat implements Format for bilingual EPUB files. Every spine item is a
// chapter, every <p> a paragraph, and every element carrying both a lang="de"
// and a lang="es" child is a segment.
type EPUBFormat struct{}

func init() {
	Register(&EPUBFormat{})
}

func (f *EPUBFormat) Name() string         { return "EPUB" }
func (f *EPUBFormat) Extensions() []string { return []string{".epub"} }

// Extract reads all chapters of a bilingual EPUB.
func (f *EPUBFormat) Extract(filename string) (*Volume, error) {
	rc, err := epub.OpenReader(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, fmt.Errorf("no rootfiles found in epub")
	}

	book := rc.Rootfiles[0]
	titles, err := chapterTitles(book)
	if err != nil {
		// chapter headings still provide titles
		titles = map[string]Localized{}
	}

	vol := &Volume{Book: Book{
		ID:     slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))),
		Title:  splitBilingual(book.Title),
		Author: splitBilingual(book.Creator),
	}}

	for i, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		r, err := ref.Item.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			continue
		}

		id := slug.Make(strings.TrimSuffix(path.Base(ref.Item.HREF), path.Ext(ref.Item.HREF)))
		if id == "" {
			id = fmt.Sprintf("chapter-%d", i+1)
		}
		segments, heading := extractSegments(string(data), id)
		if len(segments) == 0 {
			continue
		}

		title := splitBilingual(heading)
		if t, ok := titles[path.Base(ref.Item.HREF)]; ok {
			title = t
		}
		if title.De == "" {
			title = Localized{De: fmt.Sprintf("Kapitel %d", i+1), Es: fmt.Sprintf("Capítulo %d", i+1)}
		}

		if err := vol.add(&Chapter{ID: id, Title: title, Segments: segments}); err != nil {
			return nil, fmt.Errorf("epub %s: %w", filepath.Base(filename), err)
		}
	}
	return vol, nil
}

// extractSegments walks an XHTML document and returns its segments and the text
// of the first heading.
func extractSegments(s, chapterID string) ([]Segment, string) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, ""
	}

	var (
		segments  []Segment
		heading   string
		paraStart bool
	)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "h1", "h2":
				if heading == "" {
					heading = strings.TrimSpace(textContent(n))
				}
				return
			case "p":
				paraStart = true
			}
			de, es := langChild(n, "de"), langChild(n, "es")
			if de != nil && es != nil {
				id := attr(n, "id")
				if id == "" {
					id = fmt.Sprintf("%s-%d", chapterID, len(segments)+1)
				}
				segments = append(segments, Segment{
					ID:               id,
					German:           Tokenize(textContent(de)),
					Spanish:          Tokenize(textContent(es)),
					IsParagraphStart: paraStart,
				})
				paraStart = false
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return segments, heading
}

// langChild returns the first direct element child whose lang attribute starts
// with prefix.
func langChild(n *html.Node, prefix string) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		lang := attr(c, "lang")
		if lang == "" {
			lang = attr(c, "xml:lang")
		}
		if strings.HasPrefix(strings.ToLower(lang), prefix) {
			return c
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var out strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				out.WriteString(t)
				out.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(out.String())
}
