package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/cardissue/internal/logging"
)

// APIKeyHeader carries the shared secret on protected routes.
const APIKeyHeader = "X-Api-Key"

// forbiddenBody is identical for a missing and a wrong key.
type forbiddenBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// APIKeyAuth returns middleware that rejects requests whose x-api-key header
// does not equal key. Rejection happens before the body is read.
func APIKeyAuth(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(APIKeyHeader)
			if !validAPIKey(presented, key) {
				logging.FromContext(r.Context()).Warn("auth: rejected request",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
					"key_present", presented != "",
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(forbiddenBody{Error: "Forbidden", Code: "FORBIDDEN"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validAPIKey compares in constant time. An empty key never matches.
func validAPIKey(presented, key string) bool {
	if presented == "" || key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(key)) == 1
}
