package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
)

const maxWebhookBody = 1 << 20 // 1 MB

// WebhookHMAC returns middleware that validates an HMAC-SHA256 signature of
// the request body carried in header, as hex or "sha256=<hex>". An empty
// secret rejects every request with 503 so an unconfigured hook stays closed.
func WebhookHMAC(secret, header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeMiddlewareError(w, http.StatusServiceUnavailable, "webhook secret not configured")
				return
			}

			sig := r.Header.Get(header)
			if sig == "" {
				writeMiddlewareError(w, http.StatusUnauthorized, "missing webhook signature")
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeMiddlewareError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeMiddlewareError(w, http.StatusBadRequest, "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !VerifyHMAC(body, sig, secret) {
				writeMiddlewareError(w, http.StatusForbidden, "invalid webhook signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// VerifyHMAC checks an HMAC-SHA256 signature of payload.
func VerifyHMAC(payload []byte, signature, secret string) bool {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	return hmac.Equal(sigBytes, Sign(payload, secret))
}

// Sign returns the raw HMAC-SHA256 of payload.
func Sign(payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return mac.Sum(nil)
}

func writeMiddlewareError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
