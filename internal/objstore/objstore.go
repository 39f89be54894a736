// Package objstore provides the object storage client used for durable
// narration audio. Files are uploaded into a single application folder and
// shared by link so playback URLs work without credentials.
package objstore

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"github.com/narrateapp/narrate-server/internal/errors"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Client is the object storage surface the generation pipeline depends on.
type Client interface {
	// ResolveOrCreateFolder returns the ID of the named folder, creating it
	// if it does not exist yet.
	ResolveOrCreateFolder(ctx context.Context, name string) (string, error)
	// Upload stores data as a new file inside folderID and returns the file ID.
	Upload(ctx context.Context, folderID, filename, contentType string, data []byte) (string, error)
	// GrantPublicRead makes a file readable by anyone with the link.
	// Granting an already-public file is a success.
	GrantPublicRead(ctx context.Context, fileID string) error
	// StreamContent opens the file's content for reading.
	StreamContent(ctx context.Context, fileID string) (io.ReadCloser, error)
	// PublicURL returns the deterministic shareable playback link for a file.
	PublicURL(fileID string) string
}

// Config holds the storage API settings.
type Config struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	TokenURL      string
	APIBaseURL    string
	UploadURL     string
	PublicBaseURL string
}

// Drive is a REST client for a Drive-style storage API.
type Drive struct {
	http       *http.Client
	apiBase    string
	uploadBase string
	publicBase string
	logger     *slog.Logger
}

// New creates a storage client authenticated via an OAuth refresh token.
func New(ctx context.Context, cfg Config, logger *slog.Logger) *Drive {
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: cfg.TokenURL,
		},
	}
	source := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	return newWithHTTPClient(oauth2.NewClient(ctx, source), cfg, logger)
}

// NewWithHTTPClient creates a storage client with a caller-supplied HTTP
// client. Used by tests to point at a fake server.
func NewWithHTTPClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *Drive {
	return newWithHTTPClient(httpClient, cfg, logger)
}

func newWithHTTPClient(httpClient *http.Client, cfg Config, logger *slog.Logger) *Drive {
	return &Drive{
		http:       httpClient,
		apiBase:    strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadBase: strings.TrimRight(cfg.UploadURL, "/"),
		publicBase: cfg.PublicBaseURL,
		logger:     logger,
	}
}

type fileResource struct {
	ID       string   `json:"id,omitempty"`
	Name     string   `json:"name,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Parents  []string `json:"parents,omitempty"`
}

type fileList struct {
	Files []fileResource `json:"files"`
}

// ResolveOrCreateFolder looks the folder up by name, creating it on a miss.
func (d *Drive) ResolveOrCreateFolder(ctx context.Context, name string) (string, error) {
	query := url.Values{}
	query.Set("q", fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), folderMimeType))
	query.Set("fields", "files(id,name)")

	body, err := d.doJSON(ctx, http.MethodGet, d.apiBase+"/files?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}

	var list fileList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "parse folder list")
	}
	if len(list.Files) > 0 {
		return list.Files[0].ID, nil
	}

	d.logger.Info("creating storage folder", "name", name)

	payload, err := json.Marshal(fileResource{Name: name, MimeType: folderMimeType})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "encode folder resource")
	}
	body, err = d.doJSON(ctx, http.MethodPost, d.apiBase+"/files", payload)
	if err != nil {
		return "", err
	}

	var created fileResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "parse created folder")
	}
	if created.ID == "" {
		return "", errors.Internal("storage returned folder without ID")
	}
	return created.ID, nil
}

// Upload stores data as filename inside folderID using a multipart request
// carrying the metadata and media parts together.
func (d *Drive) Upload(ctx context.Context, folderID, filename, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.Validation("upload data is empty")
	}

	meta, err := json.Marshal(fileResource{
		Name:    SanitizeFilename(filename),
		Parents: []string{folderID},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "encode file metadata")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(metaHeader)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create metadata part")
	}
	if _, err := part.Write(meta); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "write metadata part")
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", contentType)
	part, err = mw.CreatePart(mediaHeader)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create media part")
	}
	if _, err := part.Write(data); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "write media part")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "finalize multipart body")
	}

	uploadURL := d.uploadBase + "/files?uploadType=multipart&fields=id"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "create upload request")
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	body, err := d.do(req)
	if err != nil {
		return "", err
	}

	var created fileResource
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, errors.CodeInternal, "parse upload response")
	}
	if created.ID == "" {
		return "", errors.Internal("storage returned file without ID")
	}

	d.logger.Debug("uploaded audio file",
		"file_id", created.ID,
		"bytes", len(data),
	)
	return created.ID, nil
}

// GrantPublicRead shares the file with anyone holding the link.
func (d *Drive) GrantPublicRead(ctx context.Context, fileID string) error {
	payload, err := json.Marshal(map[string]string{
		"role": "reader",
		"type": "anyone",
	})
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "encode permission")
	}

	_, err = d.doJSON(ctx, http.MethodPost, d.apiBase+"/files/"+url.PathEscape(fileID)+"/permissions", payload)
	if err != nil {
		// A duplicate grant means the file is already public, which is the
		// state we wanted.
		var domainErr *errors.Error
		if errors.As(err, &domainErr) && strings.Contains(domainErr.Message, "alreadyExists") {
			return nil
		}
		return err
	}
	return nil
}

// StreamContent opens the raw file content. The caller owns the returned reader.
func (d *Drive) StreamContent(ctx context.Context, fileID string) (io.ReadCloser, error) {
	u := d.apiBase + "/files/" + url.PathEscape(fileID) + "?alt=media"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create content request")
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, errors.Transientf("execute content request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return resp.Body, nil
}

// PublicURL builds the shareable link for a file. The same file ID always
// yields the same URL.
func (d *Drive) PublicURL(fileID string) string {
	sep := "?"
	if strings.Contains(d.publicBase, "?") {
		sep = "&"
	}
	return d.publicBase + sep + "id=" + url.QueryEscape(fileID)
}

// doJSON executes a JSON request and returns the response body.
func (d *Drive) doJSON(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return d.do(req)
}

func (d *Drive) do(req *http.Request) ([]byte, error) {
	resp, err := d.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, errors.Transientf("execute request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transientf("read response: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode, body)
	}
	return body, nil
}

// classifyStatus maps storage API statuses onto domain error classes.
func classifyStatus(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	switch {
	case status == http.StatusNotFound:
		return errors.NotFoundf("storage object not found: %s", msg)
	case status == http.StatusTooManyRequests:
		return errors.Transient("storage throttled request")
	case status >= 500:
		return errors.Transientf("storage error: status %d: %s", status, msg)
	case status >= 400:
		return errors.Validationf("storage rejected request: status %d: %s", status, msg)
	default:
		return errors.Internalf("unexpected storage status %d", status)
	}
}

// SanitizeFilename strips characters that storage providers or local
// filesystems choke on, collapsing runs of whitespace to single underscores.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "untitled"
	}

	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|' || r == 0:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	out := strings.Trim(b.String(), "_.")
	if out == "" {
		return "untitled"
	}
	return out
}
