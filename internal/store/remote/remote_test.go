package remote

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/errors"
)

func setupTestRemote(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), logger, Options{})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close() //nolint:errcheck // Test cleanup
	})
	return s
}

func sampleCatalog() *domain.Catalog {
	return &domain.Catalog{
		Version: domain.CatalogVersion,
		Books: []domain.Book{
			{
				ID:        "book-1",
				Title:     "Remote Book",
				Author:    "Someone",
				CreatedAt: time.Date(2026, 2, 14, 8, 30, 0, 0, time.UTC),
				Chapters: []domain.Chapter{
					{
						ID:    "ch-1",
						Title: "Opening",
						Segments: []domain.Segment{
							{ID: "seg-1", Text: "Hello world", Voice: "A", Status: domain.StatusIdle},
						},
					},
				},
			},
		},
	}
}

func TestStore_GetMissingKeyIsAbsent(t *testing.T) {
	s := setupTestRemote(t)

	catalog, err := s.Get(context.Background(), "library:current")
	require.NoError(t, err)
	assert.Nil(t, catalog, "missing key should be absent, not an error")
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := setupTestRemote(t)
	ctx := context.Background()
	want := sampleCatalog()

	require.NoError(t, s.Put(ctx, "library:current", want))

	got, err := s.Get(ctx, "library:current")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_PutIsUpsert(t *testing.T) {
	s := setupTestRemote(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", sampleCatalog()))

	updated := sampleCatalog()
	updated.Books[0].Title = "Second Write"
	require.NoError(t, s.Put(ctx, "k", updated))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "Second Write", got.Books[0].Title)
}

func TestStore_KeysAreIndependent(t *testing.T) {
	s := setupTestRemote(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "current", sampleCatalog()))

	got, err := s.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_MalformedRowTreatedAsEmpty(t *testing.T) {
	s := setupTestRemote(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO catalog_rows (key, catalog_json, updated_at) VALUES (?, ?, ?)`,
		"corrupt", "{not json", time.Now().UTC().Format(time.RFC3339Nano))
	require.NoError(t, err)

	got, err := s.Get(ctx, "corrupt")
	require.NoError(t, err, "a corrupt row must not fail the whole load")
	require.NotNil(t, got)
	assert.True(t, got.IsEmpty())
}

func TestStore_Probe(t *testing.T) {
	s := setupTestRemote(t)

	result := s.Probe(context.Background())
	assert.True(t, result.Connected)
	assert.Equal(t, "ok", result.Message)
}

func TestStore_ProbeAfterClose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), logger, Options{})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	result := s.Probe(context.Background())
	assert.False(t, result.Connected)
	assert.NotEmpty(t, result.Message)
}

func TestWithRetry_DoesNotRetryValidationErrors(t *testing.T) {
	s := setupTestRemote(t)

	calls := 0
	err := s.withRetry(context.Background(), time.Second, func(context.Context) error {
		calls++
		return errors.Validation("bad payload")
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Equal(t, 1, calls, "validation errors must never be retried")
}

func TestWithRetry_RetriesTransientErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), logger, Options{
		Attempts: 3,
		Backoff:  time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() }) //nolint:errcheck // Test cleanup

	calls := 0
	err = s.withRetry(context.Background(), time.Second, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.Transient("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ExhaustionSurfacesLastError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s, err := Open(filepath.Join(t.TempDir(), "catalog.db"), logger, Options{
		Attempts: 2,
		Backoff:  time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() }) //nolint:errcheck // Test cleanup

	calls := 0
	err = s.withRetry(context.Background(), time.Second, func(context.Context) error {
		calls++
		return errors.Transientf("attempt %d failed", calls)
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "attempt 2 failed")
}
