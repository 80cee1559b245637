package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dillydallydog/dogart/internal/domain"
	"github.com/dillydallydog/dogart/internal/imaging"
)

type previewResponse struct {
	PreviewB64 string `json:"previewB64"`
	Winner     string `json:"winner"`
	PreviewID  string `json:"previewId,omitempty"`
}

// Preview accepts a customer photo and answers with a watermarked line art
// rendering, base64 encoded so the storefront can drop it straight into an
// <img> tag.
func (a *App) Preview(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(a.Cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "expected multipart form with an image field")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image field is required")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil || len(raw) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read uploaded image")
		return
	}

	start := time.Now()
	normalized := imaging.Normalize(raw, a.Logger)

	result, err := a.Race.Run(r.Context(), normalized)
	if err != nil {
		a.Logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("preview: conversion failed")
		if errors.Is(err, domain.ErrRaceExhausted) {
			a.error(w, http.StatusBadGateway, "conversion_failed", "could not convert the photo to line art")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "conversion failed")
		return
	}

	resp := previewResponse{Winner: result.Producer}
	if a.Previews != nil {
		id, err := a.Previews.Put(r.Context(), result.Image, result.Producer)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("preview: cache write failed")
		} else {
			resp.PreviewID = id
		}
	}

	out := result.Image
	marked, err := imaging.Watermark(result.Image, a.Cfg.WatermarkText)
	if err != nil {
		// A missing watermark is recoverable; a missing preview is not.
		a.Logger.Warn().Err(err).Msg("preview: watermark failed, serving clean image")
	} else {
		out = marked
	}

	resp.PreviewB64 = base64.StdEncoding.EncodeToString(out)
	a.Logger.Info().
		Str("winner", result.Producer).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(out)).
		Msg("preview: served")
	a.json(w, http.StatusOK, resp)
}
