package reader

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

// MarkdownFormat implements Format for bilingual Markdown files:
//
//	% Der Tod in Venedig | La muerte en Venecia
//	% Thomas Mann
//	# Erstes Kapitel | Capítulo primero
//	Gustav Aschenbach ging spazieren. || Gustav Aschenbach salió a pasear.
//
//	Ein neuer Absatz. || Un párrafo nuevo.
//
// Each "||" line is a segment, blank lines separate paragraphs and headers
// start chapters.
type MarkdownFormat struct{}

func init() {
	Register(&MarkdownFormat{})
}

func (f *MarkdownFormat) Name() string         { return "Markdown" }
func (f *MarkdownFormat) Extensions() []string { return []string{".md", ".markdown"} }

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Extract parses the whole file into a volume.
func (f *MarkdownFormat) Extract(filename string) (*Volume, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vol := &Volume{Book: Book{
		ID: slug.Make(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))),
	}}

	var (
		current   *Chapter
		paraStart = true
		titleSeen bool
	)
	flush := func() error {
		if current != nil && len(current.Segments) > 0 {
			if err := vol.add(current); err != nil {
				return err
			}
		}
		current = nil
		return nil
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			paraStart = true
			continue

		case strings.HasPrefix(line, "%") && current == nil:
			// title block: first line is the title, second the author
			meta := splitBilingual(strings.TrimPrefix(line, "%"))
			if !titleSeen {
				vol.Book.Title = meta
				titleSeen = true
			} else {
				vol.Book.Author = meta
			}
			continue
		}

		if match := headerRegex.FindStringSubmatch(line); match != nil {
			if err := flush(); err != nil {
				return nil, err
			}
			title := splitBilingual(match[2])
			id := slug.Make(title.De)
			if id == "" {
				id = fmt.Sprintf("chapter-%d", len(vol.Chapters)+1)
			}
			current = &Chapter{ID: id, Title: title}
			paraStart = true
			continue
		}

		if current == nil {
			n := len(vol.Chapters) + 1
			current = &Chapter{
				ID:    fmt.Sprintf("chapter-%d", n),
				Title: Localized{De: fmt.Sprintf("Kapitel %d", n), Es: fmt.Sprintf("Capítulo %d", n)},
			}
		}

		de, es, _ := strings.Cut(line, "||")
		current.Segments = append(current.Segments, Segment{
			ID:               fmt.Sprintf("%s-s%d", current.ID, len(current.Segments)+1),
			German:           Tokenize(de),
			Spanish:          Tokenize(es),
			IsParagraphStart: paraStart,
		})
		paraStart = false
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return vol, nil
}
