// Package replicate adapts Replicate's asynchronous prediction API to the
// race.Producer contract: submit a job, poll it on a fixed interval, download
// the output. Several line-art models are configured in priority order; any
// submission or prediction failure moves on to the next model.
package replicate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/domain"
)

const (
	defaultBaseURL      = "https://api.replicate.com/v1"
	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// Poll terminal outcomes that are not success. Both unwrap to
// domain.ErrUnavailable but stay distinguishable to callers and logs.
var (
	ErrPredictionFailed = errors.New("replicate: prediction failed")
	ErrPollTimeout      = errors.New("replicate: prediction poll attempts exhausted")
)

// ModelConfig names one Replicate model worth trying.
type ModelConfig struct {
	Name    string
	Version string
	// Input entries merged into the prediction input next to the image.
	Input map[string]any
	// Faithful marks models that condition on the uploaded photo. A
	// prompt-only model cannot reproduce the subject and is excluded from
	// the default race set.
	Faithful bool
}

// DefaultModels is the fixed priority order raced for a faithful rendering.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Name:     "line-art-realistic",
			Version:  "435061a1b5a4c1e26740464bf786efdfa9cb3a3ac488595a2de23e143fdb0117",
			Input:    map[string]any{"model": "lineart_realistic"},
			Faithful: true,
		},
		{
			Name:     "line-art-anime",
			Version:  "435061a1b5a4c1e26740464bf786efdfa9cb3a3ac488595a2de23e143fdb0117",
			Input:    map[string]any{"model": "lineart_anime"},
			Faithful: true,
		},
	}
}

// Options configures the Replicate client.
type Options struct {
	Token        string
	BaseURL      string
	Models       []ModelConfig
	HTTPClient   *http.Client
	Logger       zerolog.Logger
	PollInterval time.Duration
	PollAttempts int
}

// Client submits and polls predictions. Built once at process start, safe
// for concurrent reuse.
type Client struct {
	token        string
	baseURL      string
	models       []ModelConfig
	httpClient   *http.Client
	logger       zerolog.Logger
	pollInterval time.Duration
	pollAttempts int
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Error  string          `json:"error"`
	Output json.RawMessage `json:"output"`
}

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := opts.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}
	return &Client{
		token:        strings.TrimSpace(opts.Token),
		baseURL:      baseURL,
		models:       models,
		httpClient:   httpClient,
		logger:       opts.Logger,
		pollInterval: interval,
		pollAttempts: attempts,
	}
}

// Name identifies this candidate in race logs.
func (c *Client) Name() string { return "replicate" }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.token != "" }

// Render tries each configured faithful model in priority order and returns
// the first completed prediction's image.
func (c *Client) Render(ctx context.Context, src []byte) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, domain.ErrUnconfigured
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(src)
	var failures []error
	for _, model := range c.models {
		if !model.Faithful {
			continue
		}
		img, err := c.tryModel(ctx, model, dataURL)
		if err == nil {
			return img, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("replicate: %v: %w", ctx.Err(), domain.ErrUnavailable)
		}
		c.logger.Warn().Str("model", model.Name).Err(err).Msg("replicate: model failed, trying next")
		failures = append(failures, fmt.Errorf("%s: %w", model.Name, err))
	}
	if len(failures) == 0 {
		return nil, fmt.Errorf("replicate: no faithful models configured: %w", domain.ErrUnconfigured)
	}
	return nil, fmt.Errorf("replicate: all models failed: %w", errors.Join(failures...))
}

func (c *Client) tryModel(ctx context.Context, model ModelConfig, imageDataURL string) ([]byte, error) {
	input := map[string]any{"image": imageDataURL}
	for k, v := range model.Input {
		input[k] = v
	}
	payload, err := json.Marshal(map[string]any{
		"version": model.Version,
		"input":   input,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %v: %w", err, domain.ErrMalformedResponse)
	}
	if pred.ID == "" {
		return nil, fmt.Errorf("prediction id missing: %w", domain.ErrMalformedResponse)
	}

	if pred.Status != statusSucceeded {
		pred, err = c.poll(ctx, pred.ID)
		if err != nil {
			return nil, err
		}
	}
	outputURL := firstOutputURL(pred.Output)
	if outputURL == "" {
		return nil, fmt.Errorf("prediction output missing: %w", domain.ErrMalformedResponse)
	}
	return c.download(ctx, outputURL)
}

// poll checks the prediction once per interval up to the attempt bound.
// Exhaustion is a timeout, deliberately distinct from a failed prediction.
func (c *Client) poll(ctx context.Context, id string) (prediction, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var pred prediction
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return pred, fmt.Errorf("%v: %w", ctx.Err(), domain.ErrUnavailable)
		case <-ticker.C:
		}

		raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
		if err != nil {
			return pred, err
		}
		if err := json.Unmarshal(raw, &pred); err != nil {
			return pred, fmt.Errorf("decode prediction: %v: %w", err, domain.ErrMalformedResponse)
		}
		switch pred.Status {
		case statusSucceeded:
			return pred, nil
		case statusFailed, statusCanceled:
			return pred, fmt.Errorf("%w: %s: %w", ErrPredictionFailed, pred.Error, domain.ErrUnavailable)
		}
	}
	return pred, fmt.Errorf("%w after %d attempts: %w", ErrPollTimeout, c.pollAttempts, domain.ErrUnavailable)
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %v: %w", err, domain.ErrUnavailable)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, domain.ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(raw)), domain.ErrUnavailable)
	}
	return raw, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %v: %w", err, domain.ErrUnavailable)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download status %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image: %v: %w", err, domain.ErrUnavailable)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image download: %w", domain.ErrMalformedResponse)
	}
	return data, nil
}

// firstOutputURL handles both output shapes the API uses: a bare URL string
// or an array of URLs.
func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return strings.TrimSpace(many[0])
	}
	return ""
}
