package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dillydallydog/dogart/internal/infra"
	"github.com/dillydallydog/dogart/internal/race"
	"github.com/dillydallydog/dogart/internal/storage"
)

// Uploader is the hosted-file destination for finalized artwork. The Shopify
// Files client satisfies it; tests substitute a stub.
type Uploader interface {
	HasCredentials() bool
	UploadPNG(ctx context.Context, filename string, data []byte) (string, error)
}

// PreviewCache holds clean race winners between preview and finalize.
// *store.PreviewStore satisfies it.
type PreviewCache interface {
	Put(ctx context.Context, cleanPNG []byte, winner string) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
}

type App struct {
	Logger   infra.Logger
	Cfg      *infra.Config
	Race     race.Race
	Uploader Uploader
	Files    *storage.FileStore
	// Previews is nil when no DATABASE_URL is configured.
	Previews PreviewCache
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]string{"code": errCode, "error": message})
}
