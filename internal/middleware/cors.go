// Package middleware provides HTTP middleware for the agent studio API.
package middleware

import "net/http"

// CORS returns middleware that handles CORS headers for the browser UI.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
				if allow := matchOrigin(allowedOrigins, origin); allow != "" {
					w.Header().Set("Access-Control-Allow-Origin", allow)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
					if allow != "*" {
						// Credentials are never combined with the
						// wildcard origin.
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin returns the Allow-Origin value for a request origin, or
// "" when the origin is not allowed.
func matchOrigin(allowed []string, origin string) string {
	wildcard := false
	for _, o := range allowed {
		if o == origin {
			return origin
		}
		if o == "*" {
			wildcard = true
		}
	}
	if wildcard {
		return "*"
	}
	return ""
}
