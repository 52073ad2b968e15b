// internal/middleware/security.go
//
// Security-header middleware.
//
// Sets defaults on every response, gate rejections included:
//
//   • Strict-Transport-Security  –  only when HSTS is on (force_https)
//   • X-Frame-Options            –  click-jacking defence
//   • X-Content-Type-Options     –  MIME-sniffing defence
//   • Referrer-Policy            –  drops path/query from Referer
//
// Notes
// -----
// • Headers are set *before* next.ServeHTTP; a handler that wants a
//   different value simply overwrites it.  Headers added after the body
//   starts are ignored by net/http.
// • CSP is left to the downstream site, which knows its own assets.
// • Oxford commas, two spaces after periods.
package middleware

import "net/http"

// Security returns the header middleware.  hsts adds
// Strict-Transport-Security.
func Security(hsts bool) func(http.Handler) http.Handler {
	const (
		hstsValue = "max-age=63072000; includeSubDomains"
		xfo       = "DENY"
		nosn      = "nosniff"
		refer     = "strict-origin-when-cross-origin"
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if hsts {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			h.Set("X-Frame-Options", xfo)
			h.Set("X-Content-Type-Options", nosn)
			h.Set("Referrer-Policy", refer)
			next.ServeHTTP(w, r)
		})
	}
}
