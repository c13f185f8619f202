package reader

import (
	"os"
	"path/filepath"
	"testing"
)

const bilingualMarkdown = `% Der Tod in Venedig | La muerte en Venecia
% Thomas Mann

# Erstes Kapitel | Capítulo primero
Gustav Aschenbach ging spazieren. || Gustav Aschenbach salió a pasear.
Es war Frühling. || Era primavera.

Ein neuer Absatz. || Un párrafo nuevo.

# Zweites Kapitel | Capítulo segundo
Venedig. || Venecia.
`

func TestMarkdownExtract(t *testing.T) {
	tmpDir := t.TempDir()
	mdFile := filepath.Join(tmpDir, "Tod in Venedig.md")
	if err := os.WriteFile(mdFile, []byte(bilingualMarkdown), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	f := &MarkdownFormat{}
	vol, err := f.Extract(mdFile)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if vol.Book.ID != "tod-in-venedig" {
		t.Errorf("book id = %q", vol.Book.ID)
	}
	if vol.Book.Title.Es != "La muerte en Venecia" || vol.Book.Author.De != "Thomas Mann" {
		t.Errorf("book metadata = %+v", vol.Book)
	}
	if len(vol.Chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(vol.Chapters))
	}
	if got := vol.Book.Chapters; len(got) != 2 || got[0] != "erstes-kapitel" || got[1] != "zweites-kapitel" {
		t.Errorf("chapter ids = %v", got)
	}

	ch := vol.Chapters[0]
	if ch.Title.Es != "Capítulo primero" {
		t.Errorf("title = %+v", ch.Title)
	}
	if ch.BookTitle.De != "Der Tod in Venedig" {
		t.Errorf("book title not stamped: %+v", ch.BookTitle)
	}
	if len(ch.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(ch.Segments))
	}
	if ch.Segments[0].ID != "erstes-kapitel-s1" {
		t.Errorf("segment id = %q", ch.Segments[0].ID)
	}
	if got := ch.Segments[1].Text(Spanish); got != "Era primavera." {
		t.Errorf("spanish = %q", got)
	}

	paras := ch.Paragraphs()
	if len(paras) != 2 || len(paras[0].Segments) != 2 || len(paras[1].Segments) != 1 {
		t.Errorf("unexpected paragraphs: %+v", paras)
	}
}

func TestMarkdownWithoutHeaders(t *testing.T) {
	tmpDir := t.TempDir()
	mdFile := filepath.Join(tmpDir, "short.md")
	os.WriteFile(mdFile, []byte("Hallo. || Hola.\n"), 0644)

	vol, err := (&MarkdownFormat{}).Extract(mdFile)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(vol.Chapters) != 1 || vol.Chapters[0].ID != "chapter-1" {
		t.Fatalf("expected one default chapter, got %+v", vol.Book.Chapters)
	}
	if !vol.Chapters[0].Segments[0].IsParagraphStart {
		t.Error("first segment should start a paragraph")
	}
}
