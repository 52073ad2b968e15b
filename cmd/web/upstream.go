// cmd/web/upstream.go
//
// Downstream handler for admitted requests.
//
// With http.upstream set, requests are reverse-proxied to it with the
// original Host preserved and the tenant identity attached as headers, so
// the renderer behind the gate never repeats the lookup.  Client-supplied
// X-Tenant-* headers are overwritten.  With no upstream, the gate answers
// with a plain-text line naming the tenant, which is enough for smoke tests
// and health checks.
package main

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/tenant"
)

// Headers set on proxied requests.
const (
	headerTenantID     = "X-Tenant-ID"
	headerTenantStatus = "X-Tenant-Status"
	headerTenantTheme  = "X-Tenant-Theme"
	headerPreview      = "X-Tenant-Preview"
)

func upstream(target string, log *zap.Logger) (http.Handler, error) {
	if target == "" {
		return http.HandlerFunc(acknowledge), nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("http.upstream: %w", err)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			for _, h := range []string{headerTenantID, headerTenantStatus, headerTenantTheme, headerPreview} {
				pr.Out.Header.Del(h)
			}
			if tc := tenant.FromContext(pr.In.Context()); tc != nil {
				pr.Out.Header.Set(headerTenantID, tc.TenantID)
				pr.Out.Header.Set(headerTenantStatus, string(tc.Status))
				if tc.Record.ThemeRef != "" {
					pr.Out.Header.Set(headerTenantTheme, tc.Record.ThemeRef)
				}
				if tc.Preview || tc.Maintenance {
					pr.Out.Header.Set(headerPreview, strconv.FormatBool(true))
				}
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error("upstream request failed",
				zap.String("host", r.Host),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		},
	}, nil
}

func acknowledge(w http.ResponseWriter, r *http.Request) {
	tc := tenant.FromContext(r.Context())
	if tc == nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "tenant %s (%s)\n", tc.TenantID, tc.Status)
}
