package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dillydallydog/dogart/internal/store"
)

type finalizeResponse struct {
	ArtURL string `json:"artUrl"`
}

// Finalize persists the purchased artwork and returns a stable URL for the
// order. When a preview cache is configured and the storefront passes the
// previewId back, the cached watermark-free asset is uploaded instead of the
// submitted bytes.
func (a *App) Finalize(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(a.Cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	// The storefront posts either urlencoded or multipart; ParseMultipartForm
	// parses the urlencoded body too before reporting ErrNotMultipart.
	if err := r.ParseMultipartForm(maxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.error(w, http.StatusBadRequest, "bad_request", "could not parse form")
		return
	}

	art, err := decodeFinalB64(r.FormValue("finalB64"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "finalB64 must be base64 image data")
		return
	}

	if previewID := r.FormValue("previewId"); previewID != "" && a.Previews != nil {
		clean, err := a.Previews.Get(r.Context(), previewID)
		switch {
		case err == nil:
			art = clean
		case errors.Is(err, store.ErrNotFound):
			a.Logger.Warn().Str("preview_id", previewID).Msg("finalize: preview expired, using submitted bytes")
		default:
			a.Logger.Warn().Err(err).Msg("finalize: cache read failed, using submitted bytes")
		}
	}

	filename := fmt.Sprintf("dog-art-%d-%s.png", time.Now().Unix(), uuid.NewString()[:8])

	var artURL string
	if a.Uploader != nil && a.Uploader.HasCredentials() {
		artURL, err = a.Uploader.UploadPNG(r.Context(), filename, art)
		if err != nil {
			a.Logger.Error().Err(err).Msg("finalize: upload failed")
			a.error(w, http.StatusBadGateway, "upload_failed", "could not store the artwork")
			return
		}
	} else if a.Files != nil {
		artURL, err = a.Files.Write(r.Context(), filename, art)
		if err != nil {
			a.Logger.Error().Err(err).Msg("finalize: local store failed")
			a.error(w, http.StatusInternalServerError, "internal", "could not store the artwork")
			return
		}
	} else {
		a.error(w, http.StatusServiceUnavailable, "unconfigured", "no artwork destination configured")
		return
	}

	a.Logger.Info().Str("url", artURL).Int("bytes", len(art)).Msg("finalize: stored")
	a.json(w, http.StatusOK, finalizeResponse{ArtURL: artURL})
}

func decodeFinalB64(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty payload")
	}
	// Tolerate data URLs from canvas.toDataURL.
	if idx := strings.Index(value, ","); idx >= 0 && strings.HasPrefix(value, "data:") {
		value = value[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return data, nil
}
