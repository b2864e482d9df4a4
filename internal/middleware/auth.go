package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/xelth-com/examroom/internal/utils"
)

type contextKey string

const ClientContextKey contextKey = "client"

// RelayAuth verifies relay tokens from the Authorization header or the token query parameter.
// Browsers cannot set headers on a WebSocket upgrade, hence the query fallback.
// An empty secret leaves the relay open.
func RelayAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := r.URL.Query().Get("token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				// Bearer token
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
					return
				}
				tokenString = parts[1]
			}
			if tokenString == "" {
				http.Error(w, "Relay token required", http.StatusUnauthorized)
				return
			}

			clientID, err := utils.ValidateRelayToken(tokenString, secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClientContextKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientID returns the authenticated client id, or "" on an open relay
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(ClientContextKey).(string)
	return id
}
