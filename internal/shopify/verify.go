package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// VerifyProxySignature checks the HMAC-SHA256 digest Shopify's App Proxy
// attaches to forwarded requests. rawQuery is the query string exactly as
// received (without the leading "?"). A missing signature never verifies.
// The comparison is constant-time.
func VerifyProxySignature(rawQuery, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(rawQuery))
	digest := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(digest))
}
