package middleware

import (
	"net/http"
	"strings"

	"github.com/phrazzld/genwatch/internal/api/shared"
)

// BearerToken copies the caller's bearer token into the request context.
// The token is opaque to this service; it is only forwarded to the worker.
// Requests without a token pass through unchanged, malformed headers are rejected.
func BearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		token = strings.TrimSpace(token)
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		ctx := shared.WithAuthToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
