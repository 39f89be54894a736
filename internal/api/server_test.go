package api

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrateapp/narrate-server/internal/config"
	"github.com/narrateapp/narrate-server/internal/domain"
	"github.com/narrateapp/narrate-server/internal/service"
	"github.com/narrateapp/narrate-server/internal/sse"
	"github.com/narrateapp/narrate-server/internal/store"
	"github.com/narrateapp/narrate-server/internal/synthesis"
)

// fakeSynth returns a fixed PCM buffer for every request.
type fakeSynth struct{}

func (f *fakeSynth) Synthesize(ctx context.Context, _, _ string) (*synthesis.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &synthesis.Result{
		PCM:        make([]byte, 1920*2),
		SampleRate: 48000,
		Channels:   1,
	}, nil
}

// fakeStorage is an in-memory object storage client.
type fakeStorage struct {
	uploads int
	grants  []string
	content map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{content: make(map[string][]byte)}
}

func (f *fakeStorage) ResolveOrCreateFolder(_ context.Context, _ string) (string, error) {
	return "folder-1", nil
}

func (f *fakeStorage) Upload(_ context.Context, _, _, _ string, data []byte) (string, error) {
	f.uploads++
	fileID := "file-" + strconv.Itoa(f.uploads)
	f.content[fileID] = data
	return fileID, nil
}

func (f *fakeStorage) GrantPublicRead(_ context.Context, fileID string) error {
	f.grants = append(f.grants, fileID)
	return nil
}

func (f *fakeStorage) StreamContent(_ context.Context, fileID string) (io.ReadCloser, error) {
	data, ok := f.content[fileID]
	if !ok {
		data = []byte("ogg-bytes-" + fileID)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) PublicURL(fileID string) string {
	return "https://files.test/open?id=" + fileID
}

func testCatalog() *domain.Catalog {
	return &domain.Catalog{
		Version: domain.CatalogVersion,
		Books: []domain.Book{{
			ID:    "book_1",
			Title: "The Long Winter",
			Chapters: []domain.Chapter{{
				ID:    "ch_1",
				Title: "Chapter One",
				Segments: []domain.Segment{{
					ID:     "seg_1",
					Title:  "Opening",
					Text:   "It was a dark and stormy night.",
					Voice:  "en-US-standard",
					Status: domain.StatusIdle,
				}},
			}},
		}},
	}
}

// setupTestServer creates a server backed by real services over a temp cache,
// with fakes standing in for synthesis and object storage.
func setupTestServer(t *testing.T) (*Server, *fakeStorage) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	sseManager := sse.NewManager(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go sseManager.Start(ctx)
	t.Cleanup(cancel)
	sseHandler := sse.NewHandler(sseManager, logger)

	cache, err := store.Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	syncService := service.NewSyncService(nil, cache, "catalog:v1", "catalog", logger)
	library := service.NewLibraryService(syncService, sseManager, logger)
	require.NoError(t, library.ReplaceCatalog(context.Background(), testCatalog()))

	storage := newFakeStorage()
	generation := service.NewGenerationService(library, &fakeSynth{}, storage, sseManager, config.GenerationConfig{
		Timeout:      5 * time.Second,
		TickInterval: 20 * time.Millisecond,
	}, "NarrateAudio", logger)
	t.Cleanup(generation.Shutdown)
	repair := service.NewRepairService(library, storage, sseManager, logger)

	server := NewServer(&Services{
		Library:    library,
		Generation: generation,
		Repair:     repair,
		Sync:       syncService,
	}, storage, sseManager, sseHandler, logger)

	return server, storage
}

func doRequest(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthCheck(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	health := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "degraded", health.Components["remote"].Status)
	assert.Equal(t, "healthy", health.Components["storage"].Status)
	assert.Equal(t, "healthy", health.Components["sse"].Status)
}

func TestRemoteHealth_NotConfigured(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/health/remote", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, false, body["connected"])
	assert.Equal(t, "remote store not configured", body["message"])
}

func TestGetCatalog(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/catalog", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	catalog := decodeBody[domain.Catalog](t, w)
	assert.Equal(t, domain.CatalogVersion, catalog.Version)
	require.Len(t, catalog.Books, 1)
	assert.Equal(t, "The Long Winter", catalog.Books[0].Title)
}

func TestPutCatalog_ReplacesLibrary(t *testing.T) {
	server, _ := setupTestServer(t)

	replacement := testCatalog()
	replacement.Books[0].Title = "The Short Summer"
	replacement.Books[0].Chapters[0].Segments[0].Text = "Different text entirely."

	w := doRequest(t, server, http.MethodPut, "/api/v1/catalog", replacement)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodGet, "/api/v1/catalog", nil)
	catalog := decodeBody[domain.Catalog](t, w)
	require.Len(t, catalog.Books, 1)
	assert.Equal(t, "The Short Summer", catalog.Books[0].Title)
}

func TestGetSegment(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	seg := decodeBody[domain.Segment](t, w)
	assert.Equal(t, "seg_1", seg.ID)
	assert.Equal(t, "It was a dark and stormy night.", seg.Text)
}

func TestGetSegment_NotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestUpdateSegment_TextEdit(t *testing.T) {
	server, _ := setupTestServer(t)

	newText := "A completely rewritten passage."
	w := doRequest(t, server, http.MethodPut, "/api/v1/segments/seg_1", UpdateSegmentRequest{Text: &newText})
	assert.Equal(t, http.StatusOK, w.Code)

	seg := decodeBody[domain.Segment](t, w)
	assert.Equal(t, newText, seg.Text)
	assert.Equal(t, domain.StatusIdle, seg.Status)
	assert.False(t, seg.HasAudio())
}

func TestUpdateSegment_EmptyTextRejected(t *testing.T) {
	server, _ := setupTestServer(t)

	empty := "   "
	w := doRequest(t, server, http.MethodPut, "/api/v1/segments/seg_1", UpdateSegmentRequest{Text: &empty})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody[map[string]any](t, w)
	assert.Equal(t, "VALIDATION", body["code"])
}

func TestGenerateSegment_CompletesAndStreams(t *testing.T) {
	server, storage := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/segments/seg_1/generate", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	seg := decodeBody[domain.Segment](t, w)
	assert.Equal(t, domain.StatusGenerating, seg.Status)

	require.Eventually(t, func() bool {
		w := doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1", nil)
		return decodeBody[domain.Segment](t, w).Status == domain.StatusReady
	}, 5*time.Second, 10*time.Millisecond)

	w = doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1", nil)
	ready := decodeBody[domain.Segment](t, w)
	assert.Equal(t, "file-1", ready.StorageFileID)
	assert.Equal(t, 1, storage.uploads)
	assert.Contains(t, storage.grants, "file-1")

	w = doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1/audio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/ogg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())
}

func TestGenerateSegment_UnknownSegment(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/segments/seg_missing/generate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelGeneration_NoActiveRun(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodPost, "/api/v1/segments/seg_1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRepair_RewritesURLs(t *testing.T) {
	server, _ := setupTestServer(t)

	catalog := testCatalog()
	seg := &catalog.Books[0].Chapters[0].Segments[0]
	seg.StorageFileID = "file-9"
	seg.AudioURL = "https://old-host.example.com/media/file-9"
	seg.Status = domain.StatusReady
	seg.Progress = 100
	w := doRequest(t, server, http.MethodPut, "/api/v1/catalog", catalog)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodPost, "/api/v1/repair", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	report := decodeBody[service.RepairReport](t, w)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 0, report.Failed)

	w = doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1", nil)
	repaired := decodeBody[domain.Segment](t, w)
	assert.Equal(t, "https://files.test/open?id=file-9", repaired.AudioURL)
}

func TestSegmentAudio_NoAudio(t *testing.T) {
	server, _ := setupTestServer(t)

	w := doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1/audio", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSegmentAudio_InlineBytes(t *testing.T) {
	server, _ := setupTestServer(t)

	catalog := testCatalog()
	seg := &catalog.Books[0].Chapters[0].Segments[0]
	seg.AudioData = []byte("inline-ogg")
	seg.Status = domain.StatusReady
	seg.Progress = 100
	w := doRequest(t, server, http.MethodPut, "/api/v1/catalog", catalog)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, server, http.MethodGet, "/api/v1/segments/seg_1/audio", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inline-ogg", w.Body.String())
}
