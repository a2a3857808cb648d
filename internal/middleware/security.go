// Package middleware provides HTTP middleware for the view counting API.
package middleware

import (
	"net/http"
)

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS in dev environments.
	IsDevelopment bool
	// MaxRequestBodySize is the max allowed request body in bytes.
	// Default: 1MB (1048576 bytes).
	MaxRequestBodySize int64
}

// DefaultSecurityConfig returns sensible defaults for production.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		IsDevelopment:      false,
		MaxRequestBodySize: 1 << 20, // 1MB
	}
}

// securityHeaders are applied to every response. The service only ever
// serves JSON, so the CSP and feature policies are maximally restrictive.
// View counts change constantly and responses carry visitor state, so
// intermediaries must not cache them.
var securityHeaders = map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"X-XSS-Protection":        "0",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"Permissions-Policy":      "geolocation=(), microphone=(), camera=(), payment=(), usb=()",
	"Cache-Control":           "no-store",
}

// hstsValue is sent only outside development, where TLS terminates upstream.
const hstsValue = "max-age=31536000; includeSubDomains; preload"

// Security returns a middleware that applies security headers to all
// responses. It should sit early in the chain.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range securityHeaders {
				w.Header().Set(name, value)
			}
			if !cfg.IsDevelopment {
				w.Header().Set("Strict-Transport-Security", hstsValue)
			}
			w.Header().Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize returns a middleware that limits request body size. Declared
// lengths over the limit are rejected outright; chunked bodies are wrapped
// with MaxBytesReader so reads fail once the limit is crossed.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxBytes {
				http.Error(w, `{"error":{"code":"PAYLOAD_TOO_LARGE","message":"Request body too large"}}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
