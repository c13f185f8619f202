package reader

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taylorskalyo/goreader/epub"
)

var epubFiles = []struct{ name, body string }{
	{"mimetype", "application/epub+zip"},
	{"META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`},
	{"OEBPS/content.opf", `<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Der Tod in Venedig | La muerte en Venecia</dc:title>
    <dc:creator>Thomas Mann</dc:creator>
  </metadata>
  <manifest>
    <item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>
    <item id="ch1" href="chapter-1.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
  </spine>
</package>`},
	{"OEBPS/toc.ncx", `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Erstes Kapitel | Capítulo primero</text></navLabel>
      <content src="chapter-1.xhtml"/>
    </navPoint>
  </navMap>
</ncx>`},
	{"OEBPS/chapter-1.xhtml", `<html><body>
<h1>Erstes Kapitel</h1>
<p>
  <span class="seg" id="s1"><span lang="de">Gustav Aschenbach</span><span lang="es">Gustav Aschenbach</span></span>
  <span class="seg"><span lang="de">ging spazieren.</span><span lang="es">salió a pasear.</span></span>
</p>
<p><span class="seg" id="s3"><span lang="de-DE">Es war Frühling.</span><span lang="es">Era primavera.</span></span></p>
</body></html>`},
}

func writeEPUB(t *testing.T, path string) {
	t.Helper()
	writeEPUBFiles(t, path, epubFiles)
}

func writeEPUBFiles(t *testing.T, path string, files []struct{ name, body string }) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for _, e := range files {
		w, err := zw.Create(e.name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(e.body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestEPUBFormat(t *testing.T) {
	f := &EPUBFormat{}
	if f.Name() != "EPUB" {
		t.Errorf("Name() = %q, want EPUB", f.Name())
	}
	if exts := f.Extensions(); len(exts) != 1 || exts[0] != ".epub" {
		t.Errorf("Extensions() = %v, want [.epub]", exts)
	}
}

func TestEPUBExtract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "venedig.epub")
	writeEPUB(t, path)

	vol, err := (&EPUBFormat{}).Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if vol.Book.Title.Es != "La muerte en Venecia" {
		t.Errorf("book title = %+v", vol.Book.Title)
	}
	if len(vol.Chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(vol.Chapters))
	}
	ch := vol.Chapters[0]
	if ch.ID != "chapter-1" || ch.Title.Es != "Capítulo primero" {
		t.Errorf("chapter = %s %+v", ch.ID, ch.Title)
	}
	if len(ch.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(ch.Segments))
	}
	if ch.Segments[0].ID != "s1" || ch.Segments[1].ID != "chapter-1-2" {
		t.Errorf("segment ids = %s, %s", ch.Segments[0].ID, ch.Segments[1].ID)
	}
	if got := ch.Segments[1].Text(Spanish); got != "salió a pasear." {
		t.Errorf("spanish = %q", got)
	}
	if !ch.Segments[0].IsParagraphStart || ch.Segments[1].IsParagraphStart || !ch.Segments[2].IsParagraphStart {
		t.Error("paragraph starts not detected")
	}
}

func TestExtractSegmentsIgnoresPlainText(t *testing.T) {
	segs, heading := extractSegments(`<html><body><h2>Titel</h2><p>Nur Deutsch.</p></body></html>`, "c")
	if len(segs) != 0 {
		t.Errorf("expected no segments, got %+v", segs)
	}
	if heading != "Titel" {
		t.Errorf("heading = %q", heading)
	}
}

func TestChapterTitles(t *testing.T) {
	files := append([]struct{ name, body string }{}, epubFiles...)
	for i := range files {
		if files[i].name == "OEBPS/toc.ncx" {
			files[i].body = `<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <navMap>
    <navPoint id="n1" playOrder="1">
      <navLabel><text>Erstes Kapitel | Capítulo primero</text></navLabel>
      <content src="text/chapter-1.xhtml"/>
      <navPoint id="n2" playOrder="2">
        <navLabel><text>Abschnitt | Sección</text></navLabel>
        <content src="text/chapter-1.xhtml#part"/>
      </navPoint>
      <navPoint id="n3" playOrder="3">
        <navLabel><text>Zweites Kapitel</text></navLabel>
        <content src="chapter-2.xhtml#top"/>
      </navPoint>
    </navPoint>
  </navMap>
</ncx>`
		}
	}
	path := filepath.Join(t.TempDir(), "nested.epub")
	writeEPUBFiles(t, path, files)

	rc, err := epub.OpenReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	titles, err := chapterTitles(rc.Rootfiles[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 2 {
		t.Fatalf("titles = %+v", titles)
	}
	if got := titles["chapter-1.xhtml"]; got != (Localized{De: "Erstes Kapitel", Es: "Capítulo primero"}) {
		t.Errorf("chapter-1 = %+v, first label must win", got)
	}
	if got := titles["chapter-2.xhtml"]; got.De != "Zweites Kapitel" || got.Es != "Zweites Kapitel" {
		t.Errorf("chapter-2 = %+v", got)
	}
}

func TestChapterTitlesWithoutNCX(t *testing.T) {
	var files []struct{ name, body string }
	for _, f := range epubFiles {
		switch f.name {
		case "OEBPS/toc.ncx":
			continue
		case "OEBPS/content.opf":
			f.body = strings.Replace(f.body,
				`<item id="ncx" href="toc.ncx" media-type="application/x-dtbncx+xml"/>`, "", 1)
			f.body = strings.Replace(f.body, `<spine toc="ncx">`, "<spine>", 1)
		}
		files = append(files, f)
	}
	path := filepath.Join(t.TempDir(), "plain.epub")
	writeEPUBFiles(t, path, files)

	vol, err := (&EPUBFormat{}).Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got := vol.Chapters[0].Title.De; got != "Erstes Kapitel" {
		t.Errorf("title from heading = %q", got)
	}
}
