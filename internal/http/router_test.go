package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/http/handlers"
	"github.com/dillydallydog/dogart/internal/infra"
	"github.com/dillydallydog/dogart/internal/lineart"
	"github.com/dillydallydog/dogart/internal/race"
)

func testRouter() http.Handler {
	cfg := &infra.Config{
		MaxUploadMB:     15,
		WatermarkText:   "PREVIEW",
		PreviewDeadline: 6500 * time.Millisecond,
		AllowedOrigins:  []string{"*"},
	}
	local := lineart.Producer{Variant: lineart.VariantClassic}
	app := &handlers.App{
		Logger: zerolog.Nop(),
		Cfg:    cfg,
		Race: race.Race{
			Producers: []race.Producer{local},
			Fallback:  local.Name(),
			Deadline:  cfg.PreviewDeadline,
			Logger:    zerolog.Nop(),
		},
	}
	return NewRouter(app)
}

func TestRouterPreviewHealthCheck(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/apps/dogart/preview", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		OK    bool   `json:"ok"`
		Route string `json:"route"`
		TS    string `json:"ts"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.OK || resp.Route != "/apps/dogart/preview" || resp.TS == "" {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

func TestRouterPreflight(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodOptions, "/apps/dogart/preview", nil)
	req.Header.Set("Origin", "https://dillydally.myshopify.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
	if rec.Body.Len() != 0 {
		t.Fatal("preflight response must have no body")
	}
}

func TestRouterTrailingSlashRedirect(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview/?shop=dillydally.myshopify.com", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.HasSuffix(loc, "/apps/dogart/preview?shop=dillydally.myshopify.com") {
		t.Fatalf("Location = %q", loc)
	}
}

func TestRouterHealthz(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRouterTestAPIs(t *testing.T) {
	r := testRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/test-apis", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Providers map[string]bool `json:"providers"`
		Fallback  string          `json:"fallback"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Providers["local"] || resp.Fallback != "local" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
}
