package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() *Catalog {
	return &Catalog{
		Version: CatalogVersion,
		Books: []Book{
			{
				ID:        "book-1",
				Title:     "First Book",
				Author:    "Author One",
				CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Chapters: []Chapter{
					{
						ID:    "ch-1",
						Title: "Chapter One",
						Segments: []Segment{
							{ID: "seg-1", Title: "Intro", Text: "Hello world", Status: StatusIdle},
							{ID: "seg-2", Title: "Body", Text: "More text", Status: StatusReady, StorageFileID: "f-2"},
						},
					},
				},
			},
			{
				ID:    "book-2",
				Title: "Second Book",
				Chapters: []Chapter{
					{
						ID:       "ch-2",
						Title:    "Only Chapter",
						Segments: []Segment{{ID: "seg-3", Text: "Third", Status: StatusIdle}},
						Insights: &Insights{Summary: "short", Questions: []string{"why?"}},
					},
				},
			},
		},
	}
}

func TestCatalog_FindSegment(t *testing.T) {
	cat := testCatalog()

	book, chapter, seg, ok := cat.FindSegment("seg-2")
	require.True(t, ok)
	assert.Equal(t, "book-1", book.ID)
	assert.Equal(t, "ch-1", chapter.ID)
	assert.Equal(t, "seg-2", seg.ID)

	// Returned pointer aliases catalog storage.
	seg.Status = StatusError
	assert.Equal(t, StatusError, cat.Books[0].Chapters[0].Segments[1].Status)

	_, _, _, ok = cat.FindSegment("seg-missing")
	assert.False(t, ok)
}

func TestCatalog_Normalize(t *testing.T) {
	cat := &Catalog{}
	cat.Normalize()

	assert.Equal(t, CatalogVersion, cat.Version)
	assert.NotNil(t, cat.Books)
	assert.True(t, cat.IsEmpty())
}

func TestCatalog_Clone_IsDeep(t *testing.T) {
	cat := testCatalog()
	cat.Books[0].Chapters[0].Segments[0].AudioData = []byte{9, 9, 9}

	clone := cat.Clone()
	require.Equal(t, cat, clone)

	clone.Books[0].Chapters[0].Segments[0].Text = "mutated"
	clone.Books[0].Chapters[0].Segments[0].AudioData[0] = 1
	clone.Books[1].Chapters[0].Insights.Questions[0] = "changed"

	assert.Equal(t, "Hello world", cat.Books[0].Chapters[0].Segments[0].Text)
	assert.Equal(t, byte(9), cat.Books[0].Chapters[0].Segments[0].AudioData[0])
	assert.Equal(t, "why?", cat.Books[1].Chapters[0].Insights.Questions[0])
}

func TestCatalog_EachSegment(t *testing.T) {
	cat := testCatalog()

	var ids []string
	cat.EachSegment(func(_ *Book, _ *Chapter, s *Segment) bool {
		ids = append(ids, s.ID)
		return true
	})
	assert.Equal(t, []string{"seg-1", "seg-2", "seg-3"}, ids)

	// Early stop.
	count := 0
	cat.EachSegment(func(_ *Book, _ *Chapter, _ *Segment) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}
