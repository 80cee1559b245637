package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/infra"
	"github.com/dillydallydog/dogart/internal/lineart"
	"github.com/dillydallydog/dogart/internal/race"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8((x*255/w + y*255/h) / 2)
			img.Set(x, y, color.RGBA{R: v, G: v, B: 255 - v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func multipartImage(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "dog.jpg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func testApp() *App {
	cfg := &infra.Config{
		MaxUploadMB:     15,
		WatermarkText:   "DillyDallyDog.com • PREVIEW",
		PreviewDeadline: 6500 * time.Millisecond,
	}
	local := lineart.Producer{Variant: lineart.VariantClassic}
	return &App{
		Logger: zerolog.Nop(),
		Cfg:    cfg,
		Race: race.Race{
			Producers: []race.Producer{local},
			Fallback:  local.Name(),
			Deadline:  cfg.PreviewDeadline,
			Logger:    zerolog.Nop(),
		},
	}
}

func TestPreviewLocalOnly(t *testing.T) {
	app := testApp()
	body, contentType := multipartImage(t, "image", testJPEG(t, 500, 500))

	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Preview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		PreviewB64 string `json:"previewB64"`
		Winner     string `json:"winner"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Winner != "local" {
		t.Fatalf("winner = %q, want local", resp.Winner)
	}
	art, err := base64.StdEncoding.DecodeString(resp.PreviewB64)
	if err != nil {
		t.Fatalf("previewB64 is not base64: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(art))
	if err != nil {
		t.Fatalf("preview is not a PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > 1024 || b.Dy() > 1024 {
		t.Fatalf("preview exceeds canvas bounds: %dx%d", b.Dx(), b.Dy())
	}
}

func TestPreviewMissingImageField(t *testing.T) {
	app := testApp()
	body, contentType := multipartImage(t, "photo", testJPEG(t, 64, 64))

	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Preview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPreviewNotMultipart(t *testing.T) {
	app := testApp()
	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", bytes.NewBufferString("finalB64=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	app.Preview(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

type failingProducer struct{ name string }

func (p failingProducer) Name() string { return p.name }

func (p failingProducer) Render(ctx context.Context, src []byte) ([]byte, error) {
	return nil, fmt.Errorf("%s is down", p.name)
}

func TestPreviewAllCandidatesFail(t *testing.T) {
	app := testApp()
	app.Race = race.Race{
		Producers: []race.Producer{failingProducer{name: "local"}},
		Fallback:  "local",
		Deadline:  time.Second,
		Logger:    zerolog.Nop(),
	}
	body, contentType := multipartImage(t, "image", testJPEG(t, 64, 64))

	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Preview(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestPreviewCachesCleanWinner(t *testing.T) {
	app := testApp()
	cache := &stubCache{}
	app.Previews = cache
	body, contentType := multipartImage(t, "image", testJPEG(t, 300, 300))

	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Preview(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		PreviewB64 string `json:"previewB64"`
		PreviewID  string `json:"previewId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PreviewID == "" {
		t.Fatal("previewId missing with a cache configured")
	}
	clean, ok := cache.entries[resp.PreviewID]
	if !ok {
		t.Fatal("winner not stored in cache")
	}
	served, err := base64.StdEncoding.DecodeString(resp.PreviewB64)
	if err != nil {
		t.Fatalf("previewB64 is not base64: %v", err)
	}
	if bytes.Equal(clean, served) {
		t.Fatal("cached bytes should be the clean image, not the watermarked preview")
	}
}

type hangingProducer struct{ name string }

func (p hangingProducer) Name() string { return p.name }

func (p hangingProducer) Render(ctx context.Context, src []byte) ([]byte, error) {
	select {
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("%s never answers", p.name)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestPreviewResolvesWithinDeadline(t *testing.T) {
	app := testApp()
	app.Race.Deadline = 2 * time.Second
	app.Race.Producers = append(app.Race.Producers,
		hangingProducer{name: "openai"},
		hangingProducer{name: "replicate"},
	)
	body, contentType := multipartImage(t, "image", testJPEG(t, 500, 500))

	req := httptest.NewRequest(http.MethodPost, "/apps/dogart/preview", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	start := time.Now()
	app.Preview(rec, req)
	elapsed := time.Since(start)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("preview took %s, expected well within deadline budget", elapsed)
	}
}
