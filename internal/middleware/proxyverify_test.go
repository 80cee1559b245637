package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
)

func signQuery(secret string, query url.Values) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query.Encode()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestProxyVerifyAcceptsSignedRequest(t *testing.T) {
	secret := "shpss_test"
	params := url.Values{}
	params.Set("shop", "dillydally.myshopify.com")
	params.Set("timestamp", "1700000000")
	sig := signQuery(secret, params)
	params.Set("signature", sig)

	called := false
	h := ProxyVerify(true, secret, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/apps/dogart/preview?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("handler not reached, status %d", rec.Code)
	}
}

func TestProxyVerifyRejectsBadSignature(t *testing.T) {
	params := url.Values{}
	params.Set("shop", "dillydally.myshopify.com")
	params.Set("signature", "bm90LWEtcmVhbC1zaWduYXR1cmU=")

	h := ProxyVerify(true, "shpss_test", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/apps/dogart/preview?"+params.Encode(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProxyVerifyDisabledPassesThrough(t *testing.T) {
	called := false
	h := ProxyVerify(false, "", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/apps/dogart/preview", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("handler not reached with verification disabled")
	}
}

func TestProxyVerifySkipsPreflight(t *testing.T) {
	called := false
	h := ProxyVerify(true, "shpss_test", zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/apps/dogart/preview", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !called {
		t.Fatal("preflight should bypass signature check")
	}
}
