// Package shopify talks to the Shopify Admin GraphQL API to persist approved
// artwork as a Files entry, and verifies App Proxy request signatures.
package shopify

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

const (
	stagedUploadsCreateMutation = `mutation Staged($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets { url resourceUrl parameters { name value } }
    userErrors { field message }
  }
}`

	fileCreateMutation = `mutation FileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) { files { id url } userErrors { field message } }
}`
)

// Options configures the Admin API client.
type Options struct {
	ShopDomain  string
	AccessToken string
	APIVersion  string
	// BaseURL overrides the https://<shop-domain> Admin endpoint, for tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client uploads PNG artwork to Shopify Files. Built once at process start,
// safe for concurrent reuse.
type Client struct {
	shopDomain  string
	accessToken string
	apiVersion  string
	baseURL     string
	httpClient  *http.Client
	logger      zerolog.Logger
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type stagedUploadsCreateData struct {
	StagedUploadsCreate struct {
		StagedTargets []struct {
			URL         string `json:"url"`
			ResourceURL string `json:"resourceUrl"`
			Parameters  []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"parameters"`
		} `json:"stagedTargets"`
		UserErrors []userError `json:"userErrors"`
	} `json:"stagedUploadsCreate"`
}

type fileCreateData struct {
	FileCreate struct {
		Files []struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"files"`
		UserErrors []userError `json:"userErrors"`
	} `json:"fileCreate"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "2024-07"
	}
	return &Client{
		shopDomain:  strings.TrimSpace(opts.ShopDomain),
		accessToken: strings.TrimSpace(opts.AccessToken),
		apiVersion:  apiVersion,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  httpClient,
		logger:      opts.Logger,
	}
}

// HasCredentials reports whether the client can reach the Admin API.
func (c *Client) HasCredentials() bool {
	return c.shopDomain != "" && c.accessToken != ""
}

// UploadPNG stages an upload, posts the bytes to the staged target, creates
// the file record, and returns the durable CDN URL.
func (c *Client) UploadPNG(ctx context.Context, filename string, data []byte) (string, error) {
	if !c.HasCredentials() {
		return "", fmt.Errorf("shopify: admin credentials missing: %w", domain.ErrUploadFailed)
	}

	staged, err := postGraphQL[stagedUploadsCreateData](ctx, c, stagedUploadsCreateMutation, map[string]any{
		"input": []map[string]any{{
			"resource":   "FILE",
			"filename":   filename,
			"mimeType":   "image/png",
			"httpMethod": "POST",
		}},
	})
	if err != nil {
		return "", err
	}
	if errs := staged.StagedUploadsCreate.UserErrors; len(errs) > 0 {
		return "", fmt.Errorf("shopify: stagedUploadsCreate: %s: %w", errs[0].Message, domain.ErrUploadFailed)
	}
	if len(staged.StagedUploadsCreate.StagedTargets) == 0 {
		return "", fmt.Errorf("shopify: no staged target returned: %w", domain.ErrUploadFailed)
	}
	target := staged.StagedUploadsCreate.StagedTargets[0]

	if err := c.postStaged(ctx, target.URL, target.Parameters, filename, data); err != nil {
		return "", err
	}

	created, err := postGraphQL[fileCreateData](ctx, c, fileCreateMutation, map[string]any{
		"files": []map[string]any{{
			"contentType":    "IMAGE",
			"originalSource": target.ResourceURL,
			"filename":       filename,
		}},
	})
	if err != nil {
		return "", err
	}
	if errs := created.FileCreate.UserErrors; len(errs) > 0 {
		return "", fmt.Errorf("shopify: fileCreate: %s: %w", errs[0].Message, domain.ErrUploadFailed)
	}
	if len(created.FileCreate.Files) == 0 || created.FileCreate.Files[0].URL == "" {
		return "", fmt.Errorf("shopify: fileCreate returned no url: %w", domain.ErrUploadFailed)
	}
	url := created.FileCreate.Files[0].URL
	c.logger.Info().Str("filename", filename).Str("url", url).Msg("shopify: artwork uploaded")
	return url, nil
}

// postStaged sends the staged parameters plus the file as multipart form
// data to the storage target Shopify handed back.
func (c *Client) postStaged(ctx context.Context, url string, params []struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}, filename string, data []byte) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, p := range params {
		if err := form.WriteField(p.Name, p.Value); err != nil {
			return fmt.Errorf("shopify: build staged form: %w", err)
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("shopify: build staged form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("shopify: build staged form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("shopify: build staged form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("shopify: build staged request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shopify: staged upload: %v: %w", err, domain.ErrUploadFailed)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shopify: staged upload status %d: %w", resp.StatusCode, domain.ErrUploadFailed)
	}
	return nil
}

func postGraphQL[T any](ctx context.Context, c *Client, query string, variables any) (T, error) {
	var zero T
	base := c.baseURL
	if base == "" {
		base = "https://" + c.shopDomain
	}
	endpoint := fmt.Sprintf("%s/admin/api/%s/graphql.json", base, c.apiVersion)
	payload, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return zero, fmt.Errorf("shopify: encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return zero, fmt.Errorf("shopify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zero, fmt.Errorf("shopify: graphql request: %v: %w", err, domain.ErrUploadFailed)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("shopify: read response: %v: %w", err, domain.ErrUploadFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("shopify: graphql status %d: %w", resp.StatusCode, domain.ErrUploadFailed)
	}
	var decoded graphQLResponse[T]
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return zero, fmt.Errorf("shopify: decode response: %v: %w", err, domain.ErrUploadFailed)
	}
	if len(decoded.Errors) > 0 {
		return zero, fmt.Errorf("shopify: graphql error: %s: %w", decoded.Errors[0].Message, domain.ErrUploadFailed)
	}
	return decoded.Data, nil
}
