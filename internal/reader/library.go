package reader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrBookNotFound    = errors.New("book not found")
	ErrChapterNotFound = errors.New("chapter not found")
)

const bookFileName = "book.json"

// Library loads books from a directory. A book is either a directory holding
// book.json plus one <chapter>.json per chapter, or a single file in one of
// the registered formats named <book>.<ext>. Results are cached.
type Library struct {
	dir string

	mu       sync.Mutex
	books    map[string]*Book
	chapters map[string]*Chapter
	volumes  map[string]*Volume
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{
		dir:      dir,
		books:    make(map[string]*Book),
		chapters: make(map[string]*Chapter),
		volumes:  make(map[string]*Volume),
	}
}

// LoadBook returns the metadata of a book.
func (l *Library) LoadBook(ctx context.Context, bookID string) (*Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(bookID) {
		return nil, fmt.Errorf("%w: %q", ErrBookNotFound, bookID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.books[bookID]; ok {
		return b, nil
	}

	data, err := os.ReadFile(filepath.Join(l.dir, bookID, bookFileName))
	switch {
	case err == nil:
		var b Book
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("book %s: %w", bookID, err)
		}
		if b.ID == "" {
			b.ID = bookID
		}
		l.books[bookID] = &b
		return &b, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("book %s: %w", bookID, err)
	}

	vol, err := l.volume(bookID)
	if err != nil {
		return nil, err
	}
	b := vol.Book
	l.books[bookID] = &b
	return &b, nil
}

// LoadChapter returns a chapter of a book.
func (l *Library) LoadChapter(ctx context.Context, bookID, chapterID string) (*Chapter, error) {
	if _, err := l.LoadBook(ctx, bookID); err != nil {
		return nil, err
	}
	if !validID(chapterID) {
		return nil, fmt.Errorf("%w: %s/%q", ErrChapterNotFound, bookID, chapterID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := bookID + "/" + chapterID
	if ch, ok := l.chapters[key]; ok {
		return ch, nil
	}

	if vol, ok := l.volumes[bookID]; ok {
		ch, ok := vol.Chapter(chapterID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrChapterNotFound, key)
		}
		l.chapters[key] = ch
		return ch, nil
	}

	data, err := os.ReadFile(filepath.Join(l.dir, bookID, chapterID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrChapterNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("chapter %s: %w", key, err)
	}

	var ch Chapter
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("chapter %s: %w", key, err)
	}
	if ch.ID == "" {
		ch.ID = chapterID
	}
	if err := ch.prepare(); err != nil {
		return nil, err
	}
	l.chapters[key] = &ch
	return &ch, nil
}

// volume extracts a single-file book. Caller holds l.mu.
func (l *Library) volume(bookID string) (*Volume, error) {
	if vol, ok := l.volumes[bookID]; ok {
		return vol, nil
	}
	for _, f := range registry {
		for _, ext := range f.Extensions() {
			name := filepath.Join(l.dir, bookID+ext)
			if _, err := os.Stat(name); err != nil {
				continue
			}
			vol, err := f.Extract(name)
			if err != nil {
				return nil, fmt.Errorf("book %s: %w", bookID, err)
			}
			vol.Book.ID = bookID
			l.volumes[bookID] = vol
			return vol, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBookNotFound, bookID)
}

func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}
