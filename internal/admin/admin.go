// internal/admin/admin.go
//
// Operator hooks for the tenant cache.
//
// Context
// -------
// Mounted by cmd/web at /_gate on the root router, outside the tenant gate,
// so operators can reach it on any host name.  Every route requires
// `Authorization: Bearer <http.admin_token>` and is rate limited per client
// IP.  An empty admin token disables the API: every route answers 404.
//
//	GET  /stats                      entry count plus hit and miss counters
//	POST /invalidate                 drop every cached entry
//	POST /invalidate/domain/{domain} drop one domain
//	POST /invalidate/tenant/{id}     drop every domain of one tenant
//	POST /refresh/tenant/{id}        re-fetch one tenant from the store
//	POST /preview/{id}               mint a preview token for one tenant
//
// Invalidations go through an invalidate.Publisher, so on a multi-instance
// deployment with Redis they reach every instance.  A broadcast that fails
// after the local apply succeeded answers 202 with "broadcast": false.
//
// Notes
// -----
// • Store errors map to 404 (not found) and 503 (unavailable); bodies never
//   carry infrastructure detail.
// • Oxford commas, two spaces after periods.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/gate"
	"github.com/yanizio/hostgate/internal/invalidate"
	"github.com/yanizio/hostgate/internal/requestinfo"
	"github.com/yanizio/hostgate/internal/tenant"
)

// Cache is the read side of *tenant.Resolver the stats route needs.
type Cache interface {
	Len(ctx context.Context) int
	Stats() tenant.Stats
}

// Options wires an API.
type Options struct {
	Token     string
	RateLimit int // requests per minute per IP; 0 disables limiting
	Publisher invalidate.Publisher
	Cache     Cache
	Previewer *gate.Previewer // nil disables /preview
	Logger    *zap.Logger
}

// API serves the admin routes.
type API struct {
	token     []byte
	rate      int
	pub       invalidate.Publisher
	cache     Cache
	previewer *gate.Previewer
	log       *zap.Logger
}

// New builds an API from opts.
func New(opts Options) *API {
	log := opts.Logger
	if log == nil {
		log = zap.L()
	}
	return &API{
		token:     []byte(opts.Token),
		rate:      opts.RateLimit,
		pub:       opts.Publisher,
		cache:     opts.Cache,
		previewer: opts.Previewer,
		log:       log.Named("admin"),
	}
}

// Routes returns the router cmd/web mounts at /_gate.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	if a.rate > 0 {
		r.Use(httprate.Limit(
			a.rate,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				a.log.Warn("admin rate limit exceeded",
					zap.String("ip", r.RemoteAddr),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			}),
		))
	}
	r.Use(a.authorize)

	r.Get("/stats", a.handleStats)
	r.Post("/invalidate", a.handleInvalidateAll)
	r.Post("/invalidate/domain/{domain}", a.handleInvalidateDomain)
	r.Post("/invalidate/tenant/{id}", a.handleInvalidateTenant)
	r.Post("/refresh/tenant/{id}", a.handleRefresh)
	r.Post("/preview/{id}", a.handlePreview)
	return r
}

/*──────────────────────────── Middleware ──────────────────────────────────*/

func (a *API) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.token) == 0 {
			http.NotFound(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), a.token) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="hostgate"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

/*──────────────────────────── Handlers ─────────────────────────────────────*/

type statsResponse struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	s := a.cache.Stats()
	writeJSON(w, http.StatusOK, statsResponse{
		Entries: a.cache.Len(r.Context()),
		Hits:    s.Hits,
		Misses:  s.Misses,
	})
}

func (a *API) handleInvalidateAll(w http.ResponseWriter, r *http.Request) {
	a.publish(w, r, invalidate.All())
}

func (a *API) handleInvalidateDomain(w http.ResponseWriter, r *http.Request) {
	d := chi.URLParam(r, "domain")
	if tenant.NormalizeHost(d) == "" {
		writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}
	a.publish(w, r, invalidate.Domain(d))
}

func (a *API) handleInvalidateTenant(w http.ResponseWriter, r *http.Request) {
	a.publish(w, r, invalidate.Tenant(chi.URLParam(r, "id")))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	a.publish(w, r, invalidate.Refresh(chi.URLParam(r, "id")))
}

type publishResponse struct {
	Scope     invalidate.Scope `json:"scope"`
	Value     string           `json:"value,omitempty"`
	Removed   int              `json:"removed"`
	Broadcast bool             `json:"broadcast"`
}

func (a *API) publish(w http.ResponseWriter, r *http.Request, m invalidate.Message) {
	res, err := a.pub.Publish(r.Context(), m)

	fields := append([]zap.Field{
		zap.String("scope", string(m.Scope)),
		zap.String("value", m.Value),
		zap.Int("removed", res.Removed),
	}, requestinfo.FromContext(r.Context()).Fields()...)

	out := publishResponse{Scope: m.Scope, Value: m.Value, Removed: res.Removed, Broadcast: err == nil}

	switch {
	case err == nil:
		a.log.Info("admin invalidation", fields...)
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, tenant.ErrNotFound):
		a.log.Info("admin refresh of unknown tenant", fields...)
		writeError(w, http.StatusNotFound, "tenant not found")
	case errors.Is(err, tenant.ErrStoreUnavailable):
		a.log.Error("admin refresh failed", append(fields, zap.Error(err))...)
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "configuration store unavailable")
	case errors.Is(err, invalidate.ErrBroadcast):
		a.log.Warn("admin invalidation applied locally only", append(fields, zap.Error(err))...)
		writeJSON(w, http.StatusAccepted, out)
	default:
		a.log.Error("admin invalidation failed", append(fields, zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, "invalidation failed")
	}
}

type previewResponse struct {
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if a.previewer == nil {
		writeError(w, http.StatusNotFound, "preview tokens disabled")
		return
	}
	tok, exp, err := a.previewer.Issue(id)
	switch {
	case errors.Is(err, gate.ErrPreviewDisabled):
		writeError(w, http.StatusNotFound, "preview tokens disabled")
		return
	case err != nil:
		a.log.Error("preview token issue failed", zap.String("tenant", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token issue failed")
		return
	}
	a.log.Info("preview token issued", zap.String("tenant", id), zap.Time("expires", exp))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, previewResponse{TenantID: id, Token: tok, ExpiresAt: exp})
}

/*──────────────────────────── Helpers ─────────────────────────────────────*/

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
