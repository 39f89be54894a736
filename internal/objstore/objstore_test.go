package objstore

import (
	"context"
	"encoding/json/v2"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrateapp/narrate-server/internal/errors"
)

func newTestDrive(t *testing.T, handler http.Handler) *Drive {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewWithHTTPClient(srv.Client(), Config{
		APIBaseURL:    srv.URL + "/drive/v3",
		UploadURL:     srv.URL + "/upload/drive/v3",
		PublicBaseURL: "https://files.example.com/open?export=media",
	}, slog.New(slog.DiscardHandler))
}

func TestResolveOrCreateFolder_ExistingFolder(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/drive/v3/files", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("q"), "name = 'NarrateAudio'")

		require.NoError(t, json.MarshalWrite(w, fileList{
			Files: []fileResource{{ID: "folder-123", Name: "NarrateAudio"}},
		}))
	}))

	id, err := drive.ResolveOrCreateFolder(context.Background(), "NarrateAudio")
	require.NoError(t, err)
	assert.Equal(t, "folder-123", id)
}

func TestResolveOrCreateFolder_CreatesOnMiss(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			require.NoError(t, json.MarshalWrite(w, fileList{}))
		case http.MethodPost:
			var res fileResource
			require.NoError(t, json.UnmarshalRead(r.Body, &res))
			assert.Equal(t, "NarrateAudio", res.Name)
			assert.Equal(t, folderMimeType, res.MimeType)
			require.NoError(t, json.MarshalWrite(w, fileResource{ID: "folder-new"}))
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))

	id, err := drive.ResolveOrCreateFolder(context.Background(), "NarrateAudio")
	require.NoError(t, err)
	assert.Equal(t, "folder-new", id)
}

func TestUpload_MultipartRequest(t *testing.T) {
	audio := []byte{0x4f, 0x67, 0x67, 0x53, 0x00, 0x01}

	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/drive/v3/files", r.URL.Path)
		require.Equal(t, "multipart", r.URL.Query().Get("uploadType"))

		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		require.NoError(t, err)
		require.Equal(t, "multipart/related", mediaType)

		mr := multipart.NewReader(r.Body, params["boundary"])

		metaPart, err := mr.NextPart()
		require.NoError(t, err)
		var meta fileResource
		require.NoError(t, json.UnmarshalRead(metaPart, &meta))
		assert.Equal(t, "chapter_one.ogg", meta.Name)
		assert.Equal(t, []string{"folder-123"}, meta.Parents)

		mediaPart, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "audio/ogg", mediaPart.Header.Get("Content-Type"))
		got, err := io.ReadAll(mediaPart)
		require.NoError(t, err)
		assert.Equal(t, audio, got)

		require.NoError(t, json.MarshalWrite(w, fileResource{ID: "file-456"}))
	}))

	id, err := drive.Upload(context.Background(), "folder-123", "chapter one.ogg", "audio/ogg", audio)
	require.NoError(t, err)
	assert.Equal(t, "file-456", id)
}

func TestUpload_EmptyDataRejected(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should be made")
	}))

	_, err := drive.Upload(context.Background(), "folder-123", "x.ogg", "audio/ogg", nil)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestGrantPublicRead(t *testing.T) {
	var granted bool
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/drive/v3/files/file-456/permissions", r.URL.Path)

		var perm map[string]string
		require.NoError(t, json.UnmarshalRead(r.Body, &perm))
		assert.Equal(t, "reader", perm["role"])
		assert.Equal(t, "anyone", perm["type"])

		granted = true
		require.NoError(t, json.MarshalWrite(w, map[string]string{"id": "perm-1"}))
	}))

	require.NoError(t, drive.GrantPublicRead(context.Background(), "file-456"))
	assert.True(t, granted)
}

func TestGrantPublicRead_AlreadyPublicIsSuccess(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"reason": "alreadyExists"}}`, http.StatusBadRequest)
	}))

	assert.NoError(t, drive.GrantPublicRead(context.Background(), "file-456"))
}

func TestGrantPublicRead_OtherErrorsSurface(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	err := drive.GrantPublicRead(context.Background(), "file-456")
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestStreamContent(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/drive/v3/files/file-456", r.URL.Path)
		require.Equal(t, "media", r.URL.Query().Get("alt"))
		_, _ = w.Write([]byte("audio-bytes"))
	}))

	rc, err := drive.StreamContent(context.Background(), "file-456")
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(got))
}

func TestStreamContent_NotFound(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := drive.StreamContent(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPublicURL_Deterministic(t *testing.T) {
	drive := newTestDrive(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := drive.PublicURL("file-456")
	assert.Equal(t, "https://files.example.com/open?export=media&id=file-456", first)
	assert.Equal(t, first, drive.PublicURL("file-456"))

	bare := NewWithHTTPClient(http.DefaultClient, Config{PublicBaseURL: "https://files.example.com/open"}, slog.New(slog.DiscardHandler))
	assert.Equal(t, "https://files.example.com/open?id=file-456", bare.PublicURL("file-456"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "chapter.ogg", "chapter.ogg"},
		{"spaces collapse", "chapter  one final.ogg", "chapter_one_final.ogg"},
		{"path separators", `a/b\c.ogg`, "a_b_c.ogg"},
		{"reserved characters", `what? "really": <yes>|*`, "what_really_yes"},
		{"empty", "", "untitled"},
		{"only junk", `///***`, "untitled"},
		{"unicode preserved", "chäpter.ogg", "chäpter.ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}
