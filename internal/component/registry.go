// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  cmd/web mounts every
// component's Routes() at its Prefix() inside the gated router group, so
// handlers always see an admitted request with a *tenant.Context attached.
package component

import (
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Component contract.
//
// Routes() is relative to Prefix(), e.g. Prefix "/_debug" with:
//
//	r := chi.NewRouter()
//	r.Get("/whoami", whoami)
//	return r
//
// Prefixes must be unique; chi allows one Mount per pattern.
type Component interface {
	Name() string
	Prefix() string
	Routes() chi.Router
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.  A second Register
// under the same name replaces the first.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Mount attaches every registered component to r.
func Mount(r chi.Router) {
	for _, c := range All() {
		r.Mount(c.Prefix(), c.Routes())
	}
}
