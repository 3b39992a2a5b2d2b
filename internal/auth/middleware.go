package auth

import (
	"net/http"
	"strings"

	"outlay/internal/log"
)

const bearerPrefix = "Bearer "

// BearerToken extracts the token from an Authorization header,
// returning "" when the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
}

// Middleware enforces bearer-token authentication and stores the
// resolved user in the request context. Failures get a JSON 401 so
// API clients always see a parseable body.
func (d *Directory) Middleware(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			user, err := d.Authenticate(r.Context(), token)
			if err != nil {
				logger.Warn("rejected API request",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", err)
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="outlay"`)
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized"}`))
}
