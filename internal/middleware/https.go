// Package middleware holds small, composable HTTP wrappers.
package middleware

import (
	"context"
	"net/http"

	"github.com/yanizio/hostgate/internal/tenant"
)

// Resolver is the part of *tenant.Resolver ForceHTTPS needs.
type Resolver interface {
	Resolve(ctx context.Context, host string) tenant.Resolution
}

// ForceHTTPS wraps h.  If the request is plain HTTP, the host is not a
// loopback host, and the resolver knows the site, the wrapper issues a 308
// Permanent Redirect to the HTTPS version of the same URL.  Otherwise it
// calls the next handler with the Resolution on the request context, so
// unknown hosts reach the gate and get its 404 without a second lookup.
func ForceHTTPS(res Resolver, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isHTTPS(r) || tenant.IsLoopbackHost(r.Host) {
			h.ServeHTTP(w, r)
			return
		}

		out := res.Resolve(r.Context(), r.Host)
		if out.Kind == tenant.Resolved {
			target := "https://" + out.Key + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}

		h.ServeHTTP(w, r.WithContext(tenant.WithResolution(r.Context(), out)))
	})
}

// isHTTPS honours a TLS-terminating proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}
