// Package domain contains the core business entities for the Narrate shared library.
package domain

import (
	"time"
)

// CatalogVersion is the schema version written into every serialized catalog.
// Older payloads without a version field are treated as version 1.
const CatalogVersion = 1

// Catalog is the complete shared library: all books, chapters, and segments.
// It is the unit of synchronization - always read and written as a whole,
// never partially.
type Catalog struct {
	Version int    `json:"version"`
	Books   []Book `json:"books"`
}

// Book represents one narratable work in the catalog.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	CoverURL    string    `json:"cover_url,omitempty"`
	Chapters    []Chapter `json:"chapters"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chapter groups an ordered sequence of segments, with optional cached
// analysis results.
type Chapter struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Segments  []Segment `json:"segments"`
	Insights  *Insights `json:"insights,omitempty"`
	Analyzing bool      `json:"analyzing,omitempty"`
}

// Insights holds cached chapter analysis: a summary plus discussion questions.
type Insights struct {
	Summary   string   `json:"summary"`
	Questions []string `json:"questions"`
}

// EmptyCatalog returns a valid, empty catalog at the current schema version.
// An empty shared library is a normal state, not an error.
func EmptyCatalog() *Catalog {
	return &Catalog{Version: CatalogVersion, Books: []Book{}}
}

// IsEmpty reports whether the catalog holds no books.
func (c *Catalog) IsEmpty() bool {
	return c == nil || len(c.Books) == 0
}

// Normalize fills in defaults on a freshly deserialized catalog: payloads
// written before the version tag existed are stamped as version 1, and a nil
// book slice becomes empty so callers can range without nil checks.
func (c *Catalog) Normalize() {
	if c.Version == 0 {
		c.Version = CatalogVersion
	}
	if c.Books == nil {
		c.Books = []Book{}
	}
}

// FindSegment locates a segment by ID, returning pointers into the catalog so
// callers can mutate in place. Returns ok=false if no segment matches.
func (c *Catalog) FindSegment(segmentID string) (*Book, *Chapter, *Segment, bool) {
	for bi := range c.Books {
		book := &c.Books[bi]
		for ci := range book.Chapters {
			chapter := &book.Chapters[ci]
			for si := range chapter.Segments {
				if chapter.Segments[si].ID == segmentID {
					return book, chapter, &chapter.Segments[si], true
				}
			}
		}
	}
	return nil, nil, nil, false
}

// FindBook locates a book by ID.
func (c *Catalog) FindBook(bookID string) (*Book, bool) {
	for i := range c.Books {
		if c.Books[i].ID == bookID {
			return &c.Books[i], true
		}
	}
	return nil, false
}

// EachSegment calls fn for every segment in catalog order, passing the owning
// book and chapter. Iteration stops early if fn returns false.
func (c *Catalog) EachSegment(fn func(b *Book, ch *Chapter, s *Segment) bool) {
	for bi := range c.Books {
		book := &c.Books[bi]
		for ci := range book.Chapters {
			chapter := &book.Chapters[ci]
			for si := range chapter.Segments {
				if !fn(book, chapter, &chapter.Segments[si]) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy of the catalog. Used when handing a snapshot to
// persistence so concurrent in-memory edits cannot race the serializer.
func (c *Catalog) Clone() *Catalog {
	if c == nil {
		return nil
	}
	out := &Catalog{Version: c.Version, Books: make([]Book, len(c.Books))}
	for i := range c.Books {
		out.Books[i] = c.Books[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the book.
func (b Book) Clone() Book {
	out := b
	out.Chapters = make([]Chapter, len(b.Chapters))
	for i := range b.Chapters {
		out.Chapters[i] = b.Chapters[i].Clone()
	}
	return out
}

// Clone returns a deep copy of the chapter.
func (ch Chapter) Clone() Chapter {
	out := ch
	out.Segments = make([]Segment, len(ch.Segments))
	for i := range ch.Segments {
		out.Segments[i] = ch.Segments[i].Clone()
	}
	if ch.Insights != nil {
		insights := Insights{
			Summary:   ch.Insights.Summary,
			Questions: append([]string(nil), ch.Insights.Questions...),
		}
		out.Insights = &insights
	}
	return out
}
