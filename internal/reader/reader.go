// Package reader holds the bilingual chapter model and the content formats that produce it.
package reader

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Side selects one of the two languages of a bilingual text.
type Side int

const (
	German Side = iota
	Spanish
)

// Tag returns the BCP 47 tag of the side.
func (s Side) Tag() language.Tag {
	if s == Spanish {
		return language.Spanish
	}
	return language.German
}

// Name returns the side's language name in that language ("Deutsch", "español").
func (s Side) Name() string {
	return display.Self.Name(s.Tag())
}

func (s Side) String() string {
	return s.Tag().String()
}

// Localized is a string available in both languages.
type Localized struct {
	De string `json:"de"`
	Es string `json:"es"`
}

// In returns the value for the given side.
func (l Localized) In(side Side) string {
	if side == Spanish {
		return l.Es
	}
	return l.De
}

// Segment is the smallest bilingual unit with a stable identity.
type Segment struct {
	ID               string   `json:"id"`
	German           []string `json:"german"`
	Spanish          []string `json:"spanish"`
	IsParagraphStart bool     `json:"isParagraphStart,omitempty"`
}

// Text joins the tokens of one side.
func (s Segment) Text(side Side) string {
	if side == Spanish {
		return strings.Join(s.Spanish, " ")
	}
	return strings.Join(s.German, " ")
}

// Chapter is an ordered sequence of segments plus bilingual titles. It is
// treated as immutable once loaded.
type Chapter struct {
	ID        string    `json:"id"`
	Title     Localized `json:"title"`
	Author    Localized `json:"author"`
	BookTitle Localized `json:"bookTitle"`
	Segments  []Segment `json:"segments"`

	index map[string]int
}

// Lookup returns the position of the segment with the given id.
func (c *Chapter) Lookup(id string) (int, bool) {
	if c.index != nil {
		i, ok := c.index[id]
		return i, ok
	}
	for i, s := range c.Segments {
		if s.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Has reports whether the chapter contains a segment with the given id.
func (c *Chapter) Has(id string) bool {
	_, ok := c.Lookup(id)
	return ok
}

// Paragraphs groups the chapter's segments.
func (c *Chapter) Paragraphs() []Paragraph {
	return GroupParagraphs(c.Segments)
}

// prepare validates segment identities and builds the lookup index.
func (c *Chapter) prepare() error {
	if c.ID == "" {
		return fmt.Errorf("chapter without id")
	}
	c.index = make(map[string]int, len(c.Segments))
	for i, s := range c.Segments {
		if s.ID == "" {
			return fmt.Errorf("chapter %s: segment %d without id", c.ID, i)
		}
		if _, dup := c.index[s.ID]; dup {
			return fmt.Errorf("chapter %s: duplicate segment id %q", c.ID, s.ID)
		}
		c.index[s.ID] = i
	}
	return nil
}

// Paragraph is a maximal run of segments where only the first starts a
// paragraph. Derived, never stored.
type Paragraph struct {
	Index    int
	Segments []Segment
}

// Contains reports whether the segment id belongs to this paragraph.
func (p Paragraph) Contains(id string) bool {
	for _, s := range p.Segments {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Text joins all segments of one side into running text.
func (p Paragraph) Text(side Side) string {
	parts := make([]string, 0, len(p.Segments))
	for _, s := range p.Segments {
		if t := s.Text(side); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// GroupParagraphs splits segments into paragraphs at every segment marked as a
// paragraph start. A leading run without a marker still forms a paragraph.
func GroupParagraphs(segments []Segment) []Paragraph {
	var (
		paragraphs []Paragraph
		current    []Segment
	)
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, Paragraph{Index: len(paragraphs), Segments: current})
			current = nil
		}
	}
	for _, s := range segments {
		if s.IsParagraphStart {
			flush()
		}
		current = append(current, s)
	}
	flush()
	return paragraphs
}

// Tokenize splits text into tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}
