package reader

// Book describes a bilingual book and the ids of its chapters in reading order.
type Book struct {
	ID         string    `json:"id"`
	Title      Localized `json:"title"`
	Author     Localized `json:"author"`
	Chapters   []string  `json:"chapters"`
	CoverImage string    `json:"coverImage,omitempty"`
}

// Volume is a complete book extracted from a single file.
type Volume struct {
	Book     Book
	Chapters []*Chapter
}

// Chapter returns the chapter with the given id.
func (v *Volume) Chapter(id string) (*Chapter, bool) {
	for _, ch := range v.Chapters {
		if ch.ID == id {
			return ch, true
		}
	}
	return nil, false
}

// add appends a prepared chapter and stamps it with the book's titles.
func (v *Volume) add(ch *Chapter) error {
	ch.Author = v.Book.Author
	ch.BookTitle = v.Book.Title
	if err := ch.prepare(); err != nil {
		return err
	}
	v.Chapters = append(v.Chapters, ch)
	v.Book.Chapters = append(v.Book.Chapters, ch.ID)
	return nil
}
