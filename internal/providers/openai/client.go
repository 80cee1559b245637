// Package openai adapts the OpenAI image edit endpoint to the race.Producer
// contract: source photo in, line-art PNG out.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
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

const lineArtPrompt = "Convert this dog photo into clean high-contrast black-and-white LINE ART " +
	"of the dog's FACE only. No background. Crisp outlines. No shading. " +
	"Remove collars/tags if visible."

// Options configures the OpenAI client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

// Client performs image edit calls against the OpenAI API. It is built once
// at process start and is safe for concurrent reuse: all fields are read-only
// after construction.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

type imageEditResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
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
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gpt-image-1"
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// Name identifies this candidate in race logs.
func (c *Client) Name() string { return "openai" }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// Render sends the photo plus the fixed line-art prompt to the image edit
// endpoint and decodes the base64 result.
func (c *Client) Render(ctx context.Context, src []byte) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, domain.ErrUnconfigured
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}
	_ = form.WriteField("prompt", lineArtPrompt)
	_ = form.WriteField("size", "1024x1024")
	part, err := form.CreateFormFile("image", "photo.jpg")
	if err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}
	if _, err := part.Write(src); err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("openai: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/images/edits", &body)
	if err != nil {
		return nil, fmt.Errorf("openai: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: http request: %v: %w", err, domain.ErrUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read response: %v: %w", err, domain.ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var decoded imageEditResponse
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil && decoded.Error != nil {
			return nil, fmt.Errorf("openai: %s (%s): %w", decoded.Error.Message, decoded.Error.Type, domain.ErrUnavailable)
		}
		return nil, fmt.Errorf("openai: status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}

	var decoded imageEditResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("openai: decode response: %v: %w", err, domain.ErrMalformedResponse)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai: no image returned: %w", domain.ErrMalformedResponse)
	}
	img, err := base64.StdEncoding.DecodeString(decoded.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: decode image payload: %v: %w", err, domain.ErrMalformedResponse)
	}
	c.logger.Debug().Str("model", c.model).Int("bytes", len(img)).Msg("openai: image edit succeeded")
	return img, nil
}
