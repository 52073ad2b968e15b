// internal/server/timeouts.go
//
// HTTP server helper with robust timeouts and graceful shutdown.
//
// Production hardening recommends:
//
//   • ReadTimeout   – abort slow-loris headers (10 s)
//   • WriteTimeout  – cap total response time (15 s)
//   • IdleTimeout   – close keep-alives on idle clients (60 s)
//
// Values come from config (`http.*_timeout`); zero keeps the default.
//
// Run blocks until the listener fails or ctx is cancelled, then drains
// in-flight requests for at most ShutdownTimeout.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Timeouts mirrors config.HTTP.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Idle     time.Duration
	Shutdown time.Duration
}

func (t *Timeouts) defaults() {
	if t.Read <= 0 {
		t.Read = 10 * time.Second
	}
	if t.Write <= 0 {
		t.Write = 15 * time.Second
	}
	if t.Idle <= 0 {
		t.Idle = 60 * time.Second
	}
	if t.Shutdown <= 0 {
		t.Shutdown = 10 * time.Second
	}
}

// New constructs an *http.Server with the given timeouts.
func New(addr string, handler http.Handler, to Timeouts) *http.Server {
	to.defaults()
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       to.Read,
		ReadHeaderTimeout: to.Read,
		WriteTimeout:      to.Write,
		IdleTimeout:       to.Idle,
	}
}

// Run serves srv until ctx is done and then shuts it down gracefully.
// A clean shutdown returns nil.
func Run(ctx context.Context, srv *http.Server, shutdown time.Duration, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down", zap.Duration("grace", shutdown))
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdown)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
