// context.go defines the per-request tenant Context the gate attaches once a
// request is admitted.  Handlers downstream read it with FromContext and
// never look the host up again.
package tenant

import (
	"context"

	"github.com/yanizio/hostgate/internal/tenant/meta"
)

// Context is created once per admitted request.
type Context struct {
	TenantID    string
	Domain      string // primary domain from the record
	Host        string // normalized key the request arrived on
	Status      meta.Status
	Maintenance bool // admitted past maintenance via bypass or maintenance path
	Preview     bool // draft or preview site admitted via bypass
	Record      meta.Record
}

// NewContext builds a Context from a resolved record.
func NewContext(key string, rec meta.Record) *Context {
	return &Context{
		TenantID: rec.TenantID,
		Domain:   rec.Domain,
		Host:     key,
		Status:   rec.Status,
		Record:   rec,
	}
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying tc.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the tenant Context stored by the gate middleware, or
// nil when the request was never admitted.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(ctxKey{}).(*Context)
	return tc
}

type resolutionKey struct{}

// WithResolution returns a copy of ctx carrying a Resolution already made
// for this request, so later stages can skip a second lookup.
func WithResolution(ctx context.Context, res Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, res)
}

// ResolutionFromContext returns the Resolution stored for host, if any.
// A Resolution made for a different host is ignored.
func ResolutionFromContext(ctx context.Context, host string) (Resolution, bool) {
	res, ok := ctx.Value(resolutionKey{}).(Resolution)
	if !ok || res.Key != NormalizeHost(host) {
		return Resolution{}, false
	}
	return res, true
}
