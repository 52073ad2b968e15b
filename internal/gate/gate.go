// internal/gate/gate.go
//
// Tenant status gate: Resolution + request → admission decision.
//
// Context
// -------
// The resolver says which site a host belongs to; the gate says whether
// this request may see it.  Decide is a pure function of the resolution
// and two request facts (path, bypass), which keeps the whole table
// testable without HTTP:
//
//	Resolved/active       → Proceed
//	Resolved/maintenance  → Redirect to the maintenance path, unless the
//	                        request is already there or carries a bypass,
//	                        then Proceed with Maintenance set
//	Resolved/inactive     → Reject inactive
//	Resolved/draft|preview→ Proceed with Preview set when bypassed, else
//	                        Reject inactive
//	Resolved/archived     → Reject not_configured
//	Unresolved            → Reject not_configured
//	Failed                → Reject transient_error
//
// Gate.Admit composes Resolve, preview-token verification, and Decide for
// the middleware.  When an earlier stage already resolved the host and left
// the Resolution on the context, Admit uses it instead of resolving again.
//
// Notes
// -----
//   - Mapping decisions to HTTP status codes is the middleware's job.
//   - Oxford commas, two spaces after periods.
package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/metrics"
	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/tenant/meta"
)

const DefaultMaintenancePath = "/maintenance"

// Action is what the pipeline should do with the request.
type Action int

const (
	Proceed Action = iota + 1
	Redirect
	Reject
)

func (a Action) String() string {
	switch a {
	case Proceed:
		return "proceed"
	case Redirect:
		return "redirect"
	case Reject:
		return "reject"
	}
	return "unknown"
}

// Reason qualifies Redirect and Reject decisions.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonMaintenance   Reason = "maintenance"
	ReasonNotConfigured Reason = "not_configured"
	ReasonInactive      Reason = "inactive"
	ReasonTransient     Reason = "transient_error"
)

// Request carries the request facts the gate looks at.  Token is the raw
// preview credential; Admit turns it into Bypass.
type Request struct {
	Path   string
	Bypass bool
	Token  string
}

// Decision is the gate's verdict.  Tenant is set only on Proceed.
type Decision struct {
	Action   Action
	Location string
	Reason   Reason
	Tenant   *tenant.Context
}

// Resolver is the part of tenant.Resolver the gate needs.
type Resolver interface {
	Resolve(ctx context.Context, host string) tenant.Resolution
}

// Options tune a Gate.
type Options struct {
	MaintenancePath string
	Previewer       *Previewer
	Logger          *zap.Logger
}

// Gate admits or turns away requests by tenant status.
type Gate struct {
	resolver        Resolver
	maintenancePath string
	previewer       *Previewer
	log             *zap.Logger
}

// New returns a Gate over r.
func New(r Resolver, opts Options) *Gate {
	g := &Gate{
		resolver:        r,
		maintenancePath: opts.MaintenancePath,
		previewer:       opts.Previewer,
		log:             opts.Logger,
	}
	if g.maintenancePath == "" {
		g.maintenancePath = DefaultMaintenancePath
	}
	if g.log == nil {
		g.log = zap.L()
	}
	g.log = g.log.Named("gate")
	return g
}

// MaintenancePath is the redirect target for maintenance sites.
func (g *Gate) MaintenancePath() string { return g.maintenancePath }

// Admit resolves host and decides on the request.  A Resolution already
// carried on ctx for the same host is reused.
func (g *Gate) Admit(ctx context.Context, host string, req Request) Decision {
	res, ok := tenant.ResolutionFromContext(ctx, host)
	if !ok {
		res = g.resolver.Resolve(ctx, host)
	}

	if !req.Bypass && req.Token != "" && res.Kind == tenant.Resolved && g.previewer != nil {
		if err := g.previewer.Verify(req.Token, res.Record.TenantID); err == nil {
			req.Bypass = true
		} else {
			g.log.Debug("preview token rejected",
				zap.String("host", res.Key),
				zap.String("tenant_id", res.Record.TenantID))
		}
	}

	d := decide(res, req, g.maintenancePath)
	metrics.GateDecisionsTotal.WithLabelValues(d.Action.String(), string(d.Reason)).Inc()
	return d
}

// Decide applies the status table with the given maintenance path.
func (g *Gate) Decide(res tenant.Resolution, req Request) Decision {
	return decide(res, req, g.maintenancePath)
}

// Decide applies the status table with DefaultMaintenancePath.
func Decide(res tenant.Resolution, req Request) Decision {
	return decide(res, req, DefaultMaintenancePath)
}

func decide(res tenant.Resolution, req Request, maintenancePath string) Decision {
	switch res.Kind {
	case tenant.Unresolved:
		return reject(ReasonNotConfigured)
	case tenant.Resolved:
	default:
		return reject(ReasonTransient)
	}

	rec := res.Record
	switch rec.Status {
	case meta.StatusActive:
		return proceed(res.Key, rec, nil)

	case meta.StatusMaintenance:
		if req.Bypass || req.Path == maintenancePath {
			return proceed(res.Key, rec, func(tc *tenant.Context) { tc.Maintenance = true })
		}
		return Decision{Action: Redirect, Location: maintenancePath, Reason: ReasonMaintenance}

	case meta.StatusDraft, meta.StatusPreview:
		if req.Bypass {
			return proceed(res.Key, rec, func(tc *tenant.Context) { tc.Preview = true })
		}
		return reject(ReasonInactive)

	case meta.StatusArchived:
		return reject(ReasonNotConfigured)

	default: // inactive, and anything the store layer failed to normalize
		return reject(ReasonInactive)
	}
}

func proceed(key string, rec meta.Record, mark func(*tenant.Context)) Decision {
	tc := tenant.NewContext(key, rec)
	if mark != nil {
		mark(tc)
	}
	return Decision{Action: Proceed, Tenant: tc}
}

func reject(r Reason) Decision { return Decision{Action: Reject, Reason: r} }
