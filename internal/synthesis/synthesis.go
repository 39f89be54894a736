// Package synthesis provides a rate-limited client for the text-to-speech provider.
package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json/v2"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/narrateapp/narrate-server/internal/errors"
	"github.com/narrateapp/narrate-server/internal/ratelimit"
)

const (
	defaultTimeout = 60 * time.Second
	defaultBurst   = 3
)

// Result holds raw synthesized audio.
// PCM is 16-bit little-endian interleaved samples.
type Result struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Synthesizer converts text into raw PCM audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*Result, error)
}

// Config holds the client settings.
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
}

// Client is a rate-limited HTTP synthesis client.
// Requests are throttled per voice so one chatty voice cannot starve others.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger
}

// New creates a new synthesis client.
func New(cfg Config, logger *slog.Logger) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		limiter: ratelimit.New(rps, defaultBurst),
		logger:  logger,
	}
}

type synthesizeRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type synthesizeResponse struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Synthesize renders text with the given voice and returns raw PCM.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.Validation("text is empty")
	}
	if voice == "" {
		return nil, errors.Validation("voice is empty")
	}

	if err := c.limiter.Wait(ctx, voice); err != nil {
		return nil, errors.Wrap(err, errors.CodeCanceled, "rate limit wait")
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:   text,
		Voice:  voice,
		Format: "pcm_s16le",
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Debug("synthesis request",
		"voice", voice,
		"chars", len(text),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Transientf("execute request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transientf("read response: %v", err)
	}

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var sr synthesizeResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "parse response")
	}

	pcm, err := base64.StdEncoding.DecodeString(sr.Audio)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "decode audio")
	}
	if len(pcm) == 0 {
		return nil, errors.Internal("provider returned no audio")
	}

	out := &Result{
		PCM:        pcm,
		SampleRate: sr.SampleRate,
		Channels:   sr.Channels,
	}
	if out.SampleRate == 0 {
		out.SampleRate = 24000
	}
	if out.Channels == 0 {
		out.Channels = 1
	}
	return out, nil
}

// classifyStatus maps provider HTTP statuses onto domain error classes.
// Client errors are permanent, server errors and throttling are retryable.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return errors.Transient("provider throttled request")
	case status >= 500:
		return errors.Transientf("provider error: status %d", status)
	case status >= 400:
		return errors.Validationf("provider rejected request: status %d: %s", status, truncate(body, 200))
	default:
		return errors.Internalf("unexpected status %d", status)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
