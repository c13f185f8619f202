package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeJSONBook(t *testing.T, dir string) {
	t.Helper()
	bookDir := filepath.Join(dir, "tod-in-venedig")
	if err := os.MkdirAll(bookDir, 0755); err != nil {
		t.Fatal(err)
	}
	book := `{"id":"tod-in-venedig","title":{"de":"Der Tod in Venedig","es":"La muerte en Venecia"},"author":{"de":"Thomas Mann","es":"Thomas Mann"},"chapters":["chapter-1"]}`
	chapter := `{
  "id": "chapter-1",
  "title": {"de": "Erstes Kapitel", "es": "Capítulo primero"},
  "author": {"de": "Thomas Mann", "es": "Thomas Mann"},
  "bookTitle": {"de": "Der Tod in Venedig", "es": "La muerte en Venecia"},
  "segments": [
    {"id": "s1", "german": ["Gustav", "Aschenbach"], "spanish": ["Gustav", "Aschenbach"], "isParagraphStart": true},
    {"id": "s2", "german": ["ging"], "spanish": ["salió"]},
    {"id": "s3", "german": ["spazieren."], "spanish": ["a", "pasear."], "isParagraphStart": true}
  ]
}`
	os.WriteFile(filepath.Join(bookDir, "book.json"), []byte(book), 0644)
	os.WriteFile(filepath.Join(bookDir, "chapter-1.json"), []byte(chapter), 0644)
}

func TestLibraryJSON(t *testing.T) {
	dir := t.TempDir()
	writeJSONBook(t, dir)
	lib := NewLibrary(dir)
	ctx := context.Background()

	book, err := lib.LoadBook(ctx, "tod-in-venedig")
	if err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if book.Title.De != "Der Tod in Venedig" || len(book.Chapters) != 1 {
		t.Errorf("book = %+v", book)
	}

	ch, err := lib.LoadChapter(ctx, "tod-in-venedig", "chapter-1")
	if err != nil {
		t.Fatalf("LoadChapter: %v", err)
	}
	if len(ch.Segments) != 3 || !ch.Has("s2") {
		t.Errorf("chapter = %+v", ch)
	}
	if len(ch.Paragraphs()) != 2 {
		t.Errorf("expected 2 paragraphs")
	}

	again, err := lib.LoadChapter(ctx, "tod-in-venedig", "chapter-1")
	if err != nil {
		t.Fatalf("LoadChapter (cached): %v", err)
	}
	if again != ch {
		t.Error("expected cached chapter instance")
	}
}

func TestLibraryNotFound(t *testing.T) {
	dir := t.TempDir()
	writeJSONBook(t, dir)
	lib := NewLibrary(dir)
	ctx := context.Background()

	tests := []struct {
		name    string
		book    string
		chapter string
		want    error
	}{
		{"unknown book", "missing", "chapter-1", ErrBookNotFound},
		{"unknown chapter", "tod-in-venedig", "chapter-9", ErrChapterNotFound},
		{"traversal book", "../etc", "chapter-1", ErrBookNotFound},
		{"traversal chapter", "tod-in-venedig", "../book", ErrChapterNotFound},
		{"empty chapter", "tod-in-venedig", "", ErrChapterNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lib.LoadChapter(ctx, tt.book, tt.chapter)
			if !errors.Is(err, tt.want) {
				t.Errorf("LoadChapter(%q, %q) error = %v, want %v", tt.book, tt.chapter, err, tt.want)
			}
		})
	}
}

func TestLibrarySingleFileBook(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "venedig.md"), []byte(bilingualMarkdown), 0644)
	lib := NewLibrary(dir)
	ctx := context.Background()

	book, err := lib.LoadBook(ctx, "venedig")
	if err != nil {
		t.Fatalf("LoadBook: %v", err)
	}
	if book.ID != "venedig" || len(book.Chapters) != 2 {
		t.Errorf("book = %+v", book)
	}
	ch, err := lib.LoadChapter(ctx, "venedig", "zweites-kapitel")
	if err != nil {
		t.Fatalf("LoadChapter: %v", err)
	}
	if ch.Segments[0].Text(German) != "Venedig." {
		t.Errorf("segment = %+v", ch.Segments[0])
	}
	if _, err := lib.LoadChapter(ctx, "venedig", "drittes-kapitel"); !errors.Is(err, ErrChapterNotFound) {
		t.Errorf("expected ErrChapterNotFound, got %v", err)
	}
}

func TestLibraryCanceledContext(t *testing.T) {
	lib := NewLibrary(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lib.LoadBook(ctx, "any"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
