package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dillydallydog/dogart/internal/http/handlers"
	"github.com/dillydallydog/dogart/internal/middleware"
)

// NewRouter wires the app proxy surface. Shopify forwards storefront calls
// under /apps/dogart, so those paths are the public contract; everything else
// is operational.
func NewRouter(app *handlers.App) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	// Shopify occasionally appends a trailing slash when proxying.
	r.Use(chimw.RedirectSlashes)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(app.Cfg.AllowedOrigins))
	if app.Cfg.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute))
	}

	r.Route("/apps/dogart", func(r chi.Router) {
		r.Use(middleware.ProxyVerify(app.Cfg.ProxyVerifySignature, app.Cfg.ShopifyAPISecret, app.Logger))
		// OPTIONS preflights are answered by the CORS middleware before
		// routing, so only the real methods are registered here.
		r.Get("/preview", app.Health)
		r.Post("/preview", app.Preview)
		r.Post("/finalize", app.Finalize)
	})

	r.Get("/healthz", app.Healthz)
	r.Get("/api/test-apis", app.TestAPIs)

	if app.Files != nil {
		fs := stdhttp.StripPrefix("/static/", stdhttp.FileServer(stdhttp.Dir(app.Files.BasePath())))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
