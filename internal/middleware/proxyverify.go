package middleware

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/dillydallydog/dogart/internal/shopify"
)

// ProxyVerify rejects requests that do not carry a valid Shopify app proxy
// signature. When enabled is false the middleware passes everything through,
// which keeps local development working without a proxy in front.
func ProxyVerify(enabled bool, secret string, l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			query := r.URL.Query()
			signature := query.Get("signature")
			query.Del("signature")

			if !shopify.VerifyProxySignature(canonicalQuery(query), signature, secret) {
				l.Warn().Str("path", r.URL.Path).Msg("rejected request with invalid proxy signature")
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func canonicalQuery(query url.Values) string {
	return query.Encode()
}
