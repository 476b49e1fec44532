package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// timestampLayout is the millisecond-precision ISO-8601 form the exchange
// expects in OK-ACCESS-TIMESTAMP, e.g. "2024-01-15T08:30:00.123Z".
const timestampLayout = "2006-01-02T15:04:05.000Z"

// HMACAuth holds the credentials required for signed requests against the
// OKX v5 REST API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, used raw as the HMAC key
	Passphrase string // API passphrase
}

// Headers returns the HTTP headers for a private API request. The signature
// is HMAC-SHA256(secret, timestamp+method+requestPath+body) encoded as
// base64, where requestPath includes any query string and body is empty for
// GET requests.
//
// Returned header keys:
//   - OK-ACCESS-KEY
//   - OK-ACCESS-SIGN
//   - OK-ACCESS-TIMESTAMP
//   - OK-ACCESS-PASSPHRASE
//   - Content-Type
func (h *HMACAuth) Headers(method, requestPath, body string) map[string]string {
	return h.HeadersAt(method, requestPath, body, time.Now().UTC())
}

// HeadersAt is like Headers but lets the caller supply the signing time
// (useful for deterministic testing). The same inputs always produce the
// same signature.
func (h *HMACAuth) HeadersAt(method, requestPath, body string, at time.Time) map[string]string {
	ts := at.UTC().Format(timestampLayout)

	message := ts + method + requestPath + body
	sig := hmacSHA256Base64([]byte(h.Secret), message)

	return map[string]string{
		"OK-ACCESS-KEY":        h.Key,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": h.Passphrase,
		"Content-Type":         "application/json",
	}
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
