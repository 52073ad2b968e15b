package whoami

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yanizio/hostgate/internal/requestinfo"
	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/tenant/meta"
)

func TestWhoami(t *testing.T) {
	rec := meta.Record{TenantID: "t1", Domain: "a.example.com", Status: meta.StatusActive, ThemeRef: "plain"}
	tc := tenant.NewContext("a.example.com", rec)

	req := httptest.NewRequest(http.MethodGet, "http://a.example.com/whoami", nil)
	ctx := tenant.WithContext(req.Context(), tc)
	ctx = requestinfo.WithInfo(ctx, &requestinfo.RequestInfo{Host: "a.example.com", Path: "/_debug/whoami"})

	rr := httptest.NewRecorder()
	(&Comp{}).Routes().ServeHTTP(rr, req.WithContext(ctx))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["tenant_id"] != "t1" || out["status"] != "active" || out["theme"] != "plain" {
		t.Fatalf("body = %v", out)
	}
	if _, ok := out["request"]; !ok {
		t.Fatal("request info missing")
	}
}

func TestWhoami_NoTenant(t *testing.T) {
	rr := httptest.NewRecorder()
	(&Comp{}).Routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}
