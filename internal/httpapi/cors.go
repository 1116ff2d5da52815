// ABOUTME: Fixed CORS headers for the create-admin endpoint
// ABOUTME: Applied after go-chi/cors so browsers see the same set on every response

package httpapi

import (
	"net/http"
	"strings"
)

// createAdminCORS sets the create-admin CORS headers whether or not the
// request is a full preflight. With a "*" origin every response allows any
// origin; otherwise a matching Origin is echoed back.
func createAdminCORS(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hdr := w.Header()
			hdr.Set("Access-Control-Allow-Methods", createAdminMethods)
			hdr.Set("Access-Control-Allow-Headers", createAdminHeaders)
			if allowAll {
				hdr.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); originAllowed(origins, origin) {
				hdr.Set("Access-Control-Allow-Origin", origin)
				if !strings.Contains(strings.Join(hdr.Values("Vary"), ","), "Origin") {
					hdr.Add("Vary", "Origin")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches origin against exact entries and single "*"
// wildcards such as "https://*.example.com".
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	origin = strings.ToLower(origin)
	for _, a := range allowed {
		a = strings.ToLower(a)
		prefix, suffix, wild := strings.Cut(a, "*")
		if !wild {
			if a == origin {
				return true
			}
			continue
		}
		if len(origin) >= len(prefix)+len(suffix) &&
			strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
			return true
		}
	}
	return false
}
