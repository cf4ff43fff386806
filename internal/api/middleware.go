package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/Wojt3kW/ocrpdf/internal/config"
)

// AuthMiddleware accepts an API key via Bearer token or X-API-Key header,
// or HTTP basic auth when a user and bcrypt hash are configured.
func AuthMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	keySet := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keySet[k] = true
		}
	}
	basic := cfg.BasicAuthUser != "" && cfg.BasicAuthPassHash != ""

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check Bearer token
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				token := strings.TrimPrefix(auth, "Bearer ")
				if keySet[token] {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Check X-API-Key header
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && keySet[apiKey] {
				next.ServeHTTP(w, r)
				return
			}

			if basic {
				if user, pass, ok := r.BasicAuth(); ok && checkBasic(cfg, user, pass) {
					next.ServeHTTP(w, r)
					return
				}
				w.Header().Set("WWW-Authenticate", `Basic realm="ocrpdf", charset="UTF-8"`)
			}

			slog.Info("unauthorized request", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func checkBasic(cfg config.AuthConfig, user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(cfg.BasicAuthUser)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(cfg.BasicAuthPassHash), []byte(pass)) == nil
	return userOK && passOK
}

// CORSMiddleware adds CORS headers for cross-origin requests.
func CORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger writes one log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()))
	})
}
