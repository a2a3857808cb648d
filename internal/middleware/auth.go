package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viewtally/viewtally/internal/auth"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
)

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger
	// KeyHash is the Argon2id hash of the admin key (ADMIN_KEY_HASH).
	// Empty disables the guarded routes entirely.
	KeyHash string
}

// AdminAuth returns a middleware that guards mutating endpoints with the
// single configured admin key. The key arrives as a bearer token and is
// verified against the stored hash.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
			}()

			if cfg.KeyHash == "" {
				cfg.Logger.Warn("admin endpoint disabled",
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
				return
			}

			key := extractBearerKey(r)
			if key == "" {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "missing_key"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid API key")
				return
			}

			if !auth.ValidateKeyFormat(key) {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "invalid_format"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid API key")
				return
			}

			match, err := auth.VerifyKey(key, cfg.KeyHash)
			if err != nil || !match {
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", "key_mismatch"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractBearerKey pulls the admin key from the Authorization header.
// Supports "Bearer <key>" and the bare key for curl convenience.
func extractBearerKey(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}

// writeAuthError writes an authentication error response.
func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
