// internal/middleware/tenant.go
//
// Tenant gate middleware.
//
// Context
// -------
// Runs once per request, after request-info enrichment and before any
// handler that needs a tenant.  It asks the gate for a decision on the Host
// header and maps it to HTTP:
//
//	Proceed                 → next, with *tenant.Context on the request context
//	Redirect                → 302 to the maintenance path, Cache-Control: no-store
//	Reject not_configured   → 404
//	Reject inactive         → 403
//	Reject transient_error  → 503 with Retry-After
//
// Rejection bodies are the bare status text; no store or infrastructure
// detail ever reaches the client.
//
// A preview token presented in the query string is promoted to a cookie
// once it has admitted a request, so editors can click around the site
// without carrying the token on every link.
//
// Notes
// -----
//   - Oxford commas, two spaces after periods.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/gate"
	"github.com/yanizio/hostgate/internal/requestinfo"
	"github.com/yanizio/hostgate/internal/tenant"
)

// RetryAfter is the Retry-After value sent with transient failures.
const RetryAfter = 5 * time.Second

// Admitter is the part of *gate.Gate the middleware needs.
type Admitter interface {
	Admit(ctx context.Context, host string, req gate.Request) gate.Decision
}

// Tenant returns the gate middleware.
func Tenant(g Admitter, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.L()
	}
	log = log.Named("gate.http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := gate.TokenFromRequest(r)
			d := g.Admit(r.Context(), r.Host, gate.Request{Path: r.URL.Path, Token: token})

			switch d.Action {
			case gate.Proceed:
				if d.Tenant.Maintenance || d.Tenant.Preview {
					promotePreviewCookie(w, r, token)
				}
				next.ServeHTTP(w, r.WithContext(tenant.WithContext(r.Context(), d.Tenant)))

			case gate.Redirect:
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.Location, http.StatusFound)

			default:
				reject(w, r, d, log)
			}
		})
	}
}

// StatusFor maps a rejection reason to its HTTP status.
func StatusFor(reason gate.Reason) int {
	switch reason {
	case gate.ReasonNotConfigured:
		return http.StatusNotFound
	case gate.ReasonInactive:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

func reject(w http.ResponseWriter, r *http.Request, d gate.Decision, log *zap.Logger) {
	code := StatusFor(d.Reason)

	fields := append([]zap.Field{
		zap.String("host", r.Host),
		zap.String("path", r.URL.Path),
		zap.String("reason", string(d.Reason)),
		zap.Int("status", code),
	}, requestinfo.FromContext(r.Context()).Fields()...)

	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(RetryAfter.Seconds())))
		log.Warn("request rejected", fields...)
	} else {
		log.Debug("request rejected", fields...)
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(code), code)
}

func promotePreviewCookie(w http.ResponseWriter, r *http.Request, token string) {
	if token == "" || r.URL.Query().Get(gate.QueryPreviewToken) != token {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     gate.CookiePreviewToken,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
