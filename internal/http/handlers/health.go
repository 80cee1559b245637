package handlers

import (
	"net/http"
	"time"
)

// Health answers GET on the preview route so the storefront can verify the
// proxy wiring before a customer ever uploads a photo.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"ok":    true,
		"route": r.URL.Path,
		"ts":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) Healthz(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
