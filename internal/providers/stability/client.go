// Package stability adapts Stability's sketch-control endpoint to the
// race.Producer contract. Unlike the other providers it answers with raw
// image bytes rather than JSON.
package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/domain"
)

const lineArtPrompt = "clean black and white line art drawing of a dog's face, " +
	"crisp outlines, no shading, no background"

// Options configures the Stability client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs sketch-control calls. Built once at process start, safe
// for concurrent reuse.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type errorResponse struct {
	Name   string   `json:"name"`
	Errors []string `json:"errors"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.stability.ai"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Name identifies this candidate in race logs.
func (c *Client) Name() string { return "stability" }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// Render sends the photo to the sketch control endpoint and returns the
// generated image bytes.
func (c *Client) Render(ctx context.Context, src []byte) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, domain.ErrUnconfigured
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("image", "photo.jpg")
	if err != nil {
		return nil, fmt.Errorf("stability: build form: %w", err)
	}
	if _, err := part.Write(src); err != nil {
		return nil, fmt.Errorf("stability: build form: %w", err)
	}
	_ = form.WriteField("prompt", lineArtPrompt)
	_ = form.WriteField("control_strength", "0.7")
	_ = form.WriteField("output_format", "png")
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("stability: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2beta/stable-image/control/sketch", &body)
	if err != nil {
		return nil, fmt.Errorf("stability: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stability: http request: %v: %w", err, domain.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("stability: read response: %v: %w", err, domain.ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var decoded errorResponse
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil && len(decoded.Errors) > 0 {
			return nil, fmt.Errorf("stability: %s: %s: %w", decoded.Name, strings.Join(decoded.Errors, "; "), domain.ErrUnavailable)
		}
		return nil, fmt.Errorf("stability: status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("stability: empty image response: %w", domain.ErrMalformedResponse)
	}
	c.logger.Debug().Int("bytes", len(raw)).Msg("stability: sketch control succeeded")
	return raw, nil
}
