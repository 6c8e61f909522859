package http

import (
	"context"
	"encoding/json"
	"net/http"

	"tally/internal/model"
)

type contextKey int

const apiKeyContextKey contextKey = iota

// Authenticator resolves a raw API key secret to a key and its limits.
type Authenticator interface {
	Authenticate(ctx context.Context, rawSecret string) (*model.APIKey, error)
}

// APIKeyAuth requires an X-API-Key header and stores the resolved key in the
// request context.
func APIKeyAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				unauthorized(w, "missing X-API-Key header")
				return
			}
			key, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				unauthorized(w, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// keyFrom returns the authenticated key placed in the context by APIKeyAuth.
func keyFrom(r *http.Request) *model.APIKey {
	key, _ := r.Context().Value(apiKeyContextKey).(*model.APIKey)
	return key
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
