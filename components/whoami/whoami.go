// components/whoami/whoami.go
//
// Debug component that echoes the admitted tenant context together with
// the remote IP, user-agent, and geo data the request-info middleware
// collected.
package whoami

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/hostgate/internal/component"
	"github.com/yanizio/hostgate/internal/requestinfo"
	"github.com/yanizio/hostgate/internal/tenant"
)

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// Comp implements component.Component; no state.
type Comp struct{}

func (c *Comp) Name() string   { return "whoami" }
func (c *Comp) Prefix() string { return "/_debug" }

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/whoami", handler)
	return r
}

func init() { component.Register(&Comp{}) }

// handler writes a JSON blob with selected context fields.
func handler(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	if tc == nil {
		http.Error(w, "tenant context not available", http.StatusInternalServerError)
		return
	}

	out := map[string]any{
		"tenant_id":   tc.TenantID,
		"domain":      tc.Domain,
		"host":        tc.Host,
		"status":      tc.Status,
		"maintenance": tc.Maintenance,
		"preview":     tc.Preview,
		"theme":       tc.Record.ThemeRef,
		"settings":    tc.Record.Settings,
		"path":        r.URL.Path,
	}
	if ri := requestinfo.FromContext(r.Context()); ri != nil {
		out["request"] = ri
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
