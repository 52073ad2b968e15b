// internal/gate/gate_test.go
//
// Unit-tests for the status gate.
//
// Context
// -------
// TestDecide_StatusTable enumerates every row of the status table as its own
// case.  The TestAdmit_* tests run the full resolver + gate composition over
// tenanttest.Client, which is how the end-to-end behaviours are checked:
//
//   • active site, second call served from cache     → Proceed, one fetch
//   • maintenance site, with and without bypass      → Redirect / Proceed
//   • unknown domain                                 → not_configured, not cached
//   • store outage                                   → transient_error
//
// Notes
// -----
// • Oxford commas, two spaces after periods.
package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/tenant/meta"
	"github.com/yanizio/hostgate/internal/tenant/tenanttest"
)

func resolved(st meta.Status) tenant.Resolution {
	return tenant.Resolution{
		Kind:   tenant.Resolved,
		Key:    "a.example.com",
		Record: meta.Record{TenantID: "t1", Domain: "a.example.com", Status: st},
	}
}

func TestDecide_StatusTable(t *testing.T) {
	cases := []struct {
		name        string
		res         tenant.Resolution
		req         Request
		action      Action
		reason      Reason
		location    string
		maintenance bool
		preview     bool
	}{
		{name: "active", res: resolved(meta.StatusActive), action: Proceed},
		{name: "maintenance", res: resolved(meta.StatusMaintenance),
			action: Redirect, reason: ReasonMaintenance, location: "/maintenance"},
		{name: "maintenance on maintenance path", res: resolved(meta.StatusMaintenance),
			req: Request{Path: "/maintenance"}, action: Proceed, maintenance: true},
		{name: "maintenance with bypass", res: resolved(meta.StatusMaintenance),
			req: Request{Path: "/", Bypass: true}, action: Proceed, maintenance: true},
		{name: "inactive", res: resolved(meta.StatusInactive),
			action: Reject, reason: ReasonInactive},
		{name: "inactive ignores bypass", res: resolved(meta.StatusInactive),
			req: Request{Bypass: true}, action: Reject, reason: ReasonInactive},
		{name: "draft", res: resolved(meta.StatusDraft),
			action: Reject, reason: ReasonInactive},
		{name: "draft with bypass", res: resolved(meta.StatusDraft),
			req: Request{Bypass: true}, action: Proceed, preview: true},
		{name: "preview", res: resolved(meta.StatusPreview),
			action: Reject, reason: ReasonInactive},
		{name: "preview with bypass", res: resolved(meta.StatusPreview),
			req: Request{Bypass: true}, action: Proceed, preview: true},
		{name: "archived", res: resolved(meta.StatusArchived),
			req: Request{Bypass: true}, action: Reject, reason: ReasonNotConfigured},
		{name: "unresolved",
			res:    tenant.Resolution{Kind: tenant.Unresolved, Key: "x.example.com", Err: tenant.ErrNotFound},
			action: Reject, reason: ReasonNotConfigured},
		{name: "failed",
			res:    tenant.Resolution{Kind: tenant.Failed, Key: "x.example.com", Err: tenant.ErrStoreUnavailable},
			action: Reject, reason: ReasonTransient},
		{name: "unknown status fails closed", res: resolved(meta.Status("paused")),
			req: Request{Bypass: true}, action: Reject, reason: ReasonInactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.res, tc.req)
			if d.Action != tc.action || d.Reason != tc.reason || d.Location != tc.location {
				t.Fatalf("decision = %+v, want %s/%q/%q", d, tc.action, tc.reason, tc.location)
			}
			if tc.action != Proceed {
				if d.Tenant != nil {
					t.Fatalf("tenant context attached to %s", d.Action)
				}
				return
			}
			if d.Tenant == nil || d.Tenant.TenantID != "t1" || d.Tenant.Host != "a.example.com" {
				t.Fatalf("tenant context = %+v", d.Tenant)
			}
			if d.Tenant.Maintenance != tc.maintenance || d.Tenant.Preview != tc.preview {
				t.Fatalf("flags = maintenance:%v preview:%v", d.Tenant.Maintenance, d.Tenant.Preview)
			}
		})
	}
}

func TestGateDecide_CustomMaintenancePath(t *testing.T) {
	g := New(nil, Options{MaintenancePath: "/down", Logger: zaptest.NewLogger(t)})
	d := g.Decide(resolved(meta.StatusMaintenance), Request{Path: "/"})
	if d.Action != Redirect || d.Location != "/down" {
		t.Fatalf("decision = %+v", d)
	}
	d = g.Decide(resolved(meta.StatusMaintenance), Request{Path: "/down"})
	if d.Action != Proceed || !d.Tenant.Maintenance {
		t.Fatalf("decision on maintenance path = %+v", d)
	}
}

//
// Resolver + gate
//

func newGate(t *testing.T, c *tenanttest.Client, p *Previewer) (*Gate, *tenant.Resolver) {
	t.Helper()
	clk := clock.NewMock()
	log := zaptest.NewLogger(t)
	r := tenant.NewResolver(c, tenant.NewMemoryStore(time.Minute, 16, clk), tenant.Options{Clock: clk, Logger: log})
	return New(r, Options{Previewer: p, Logger: log}), r
}

func TestAdmit_ActiveServedFromCache(t *testing.T) {
	c := tenanttest.NewClient(meta.Record{TenantID: "t1", Domain: "a.example.com", Status: meta.StatusActive})
	g, _ := newGate(t, c, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d := g.Admit(ctx, "a.example.com", Request{Path: "/"})
		if d.Action != Proceed || d.Tenant.TenantID != "t1" {
			t.Fatalf("admit %d = %+v", i, d)
		}
	}
	if n := c.DomainCalls(); n != 1 {
		t.Fatalf("client calls = %d, want 1", n)
	}
}

func TestAdmit_MaintenanceBypass(t *testing.T) {
	c := tenanttest.NewClient(meta.Record{TenantID: "t2", Domain: "b.example.com", Status: meta.StatusMaintenance})
	g, _ := newGate(t, c, nil)
	ctx := context.Background()

	d := g.Admit(ctx, "b.example.com", Request{Path: "/"})
	if d.Action != Redirect || d.Location != "/maintenance" {
		t.Fatalf("no bypass = %+v, want redirect to /maintenance", d)
	}
	d = g.Admit(ctx, "b.example.com", Request{Path: "/", Bypass: true})
	if d.Action != Proceed || !d.Tenant.Maintenance {
		t.Fatalf("bypass = %+v, want Proceed with maintenance flag", d)
	}
}

func TestAdmit_UnknownDomainNotCached(t *testing.T) {
	c := tenanttest.NewClient()
	g, r := newGate(t, c, nil)
	ctx := context.Background()

	d := g.Admit(ctx, "unknown.example.com", Request{Path: "/"})
	if d.Action != Reject || d.Reason != ReasonNotConfigured {
		t.Fatalf("decision = %+v, want not_configured", d)
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("cache len = %d, want 0", n)
	}
	g.Admit(ctx, "unknown.example.com", Request{Path: "/"})
	if n := c.DomainCalls(); n != 2 {
		t.Fatalf("client calls = %d, want 2", n)
	}
}

func TestAdmit_StoreOutageIsTransient(t *testing.T) {
	c := tenanttest.NewClient(meta.Record{TenantID: "t3", Domain: "c.example.com", Status: meta.StatusActive})
	c.Fail(errors.New("dial tcp: connection refused"))
	g, r := newGate(t, c, nil)
	ctx := context.Background()

	d := g.Admit(ctx, "c.example.com", Request{Path: "/"})
	if d.Action != Reject || d.Reason != ReasonTransient {
		t.Fatalf("decision = %+v, want transient_error", d)
	}
	if d.Reason == ReasonNotConfigured {
		t.Fatal("outage must not look like an unknown domain")
	}
	if n := r.Len(ctx); n != 0 {
		t.Fatalf("cache len = %d, want 0", n)
	}
}

func TestAdmit_ReusesResolutionOnContext(t *testing.T) {
	c := tenanttest.NewClient(meta.Record{TenantID: "t3", Domain: "c.example.com", Status: meta.StatusActive})
	g, _ := newGate(t, c, nil)

	failed := tenant.Resolution{Kind: tenant.Failed, Key: "c.example.com", Err: tenant.ErrStoreUnavailable}
	ctx := tenant.WithResolution(context.Background(), failed)

	d := g.Admit(ctx, "C.Example.com:80", Request{Path: "/"})
	if d.Action != Reject || d.Reason != ReasonTransient {
		t.Fatalf("decision = %+v, want transient_error from the carried resolution", d)
	}
	if n := c.DomainCalls(); n != 0 {
		t.Fatalf("client calls = %d, want 0", n)
	}

	// A resolution made for another host is not reused.
	d = g.Admit(ctx, "other.example.com", Request{Path: "/"})
	if d.Action != Reject || d.Reason != ReasonNotConfigured {
		t.Fatalf("other host = %+v, want not_configured", d)
	}
	if n := c.DomainCalls(); n != 1 {
		t.Fatalf("client calls = %d, want 1", n)
	}
}

func TestAdmit_PreviewToken(t *testing.T) {
	c := tenanttest.NewClient(
		meta.Record{TenantID: "t4", Domain: "d.example.com", Status: meta.StatusDraft},
		meta.Record{TenantID: "t5", Domain: "e.example.com", Status: meta.StatusDraft},
	)
	p := NewPreviewer("s3cret", time.Hour)
	g, _ := newGate(t, c, p)
	ctx := context.Background()

	tok, _, err := p.Issue("t4")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if d := g.Admit(ctx, "d.example.com", Request{Path: "/"}); d.Reason != ReasonInactive {
		t.Fatalf("draft without token = %+v", d)
	}
	d := g.Admit(ctx, "d.example.com", Request{Path: "/", Token: tok})
	if d.Action != Proceed || !d.Tenant.Preview {
		t.Fatalf("draft with token = %+v", d)
	}
	if d := g.Admit(ctx, "e.example.com", Request{Path: "/", Token: tok}); d.Action != Reject {
		t.Fatalf("token for t4 admitted t5: %+v", d)
	}
	if d := g.Admit(ctx, "d.example.com", Request{Path: "/", Token: "junk"}); d.Action != Reject {
		t.Fatalf("junk token admitted: %+v", d)
	}
}
