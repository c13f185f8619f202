package reader

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
)

const ncxMediaType = "application/x-dtbncx+xml"

// navPoint is one entry of an NCX navMap, nested for sub chapters.
type navPoint struct {
	Label    string     `xml:"navLabel>text"`
	Src      contentSrc `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type contentSrc struct {
	Src string `xml:"src,attr"`
}

// chapterTitles reads the NCX of book and returns the bilingual label of every
// spine document, keyed by the document's base name. The first label pointing
// at a document wins, fragments are ignored.
func chapterTitles(book *epub.Rootfile) (map[string]Localized, error) {
	var item *epub.Item
	for i := range book.Manifest.Items {
		if book.Manifest.Items[i].MediaType == ncxMediaType {
			item = &book.Manifest.Items[i]
			break
		}
	}
	if item == nil {
		return nil, fmt.Errorf("no NCX in manifest")
	}

	r, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("open NCX: %w", err)
	}
	defer r.Close()

	var doc struct {
		Points []navPoint `xml:"navMap>navPoint"`
	}
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse NCX: %w", err)
	}

	titles := make(map[string]Localized)
	var walk func([]navPoint)
	walk = func(points []navPoint) {
		for _, np := range points {
			doc, _, _ := strings.Cut(np.Src.Src, "#")
			key := path.Base(doc)
			if _, seen := titles[key]; !seen && strings.TrimSpace(np.Label) != "" {
				titles[key] = splitBilingual(np.Label)
			}
			walk(np.Children)
		}
	}
	walk(doc.Points)
	return titles, nil
}
