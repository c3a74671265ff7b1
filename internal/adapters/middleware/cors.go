package middleware

import "net/http"

// CORSMiddleware sets Cross-Origin Resource Sharing headers for the terminal
// UI, which is served from a different origin than the API.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originAllowed(origin, allowedOrigins) {
				switch {
				case origin != "":
					w.Header().Set("Access-Control-Allow-Origin", origin)
				case len(allowedOrigins) > 0 && allowedOrigins[0] == "*":
					w.Header().Set("Access-Control-Allow-Origin", "*")
				}

				// The kiosk surface only serves GET and POST.
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
