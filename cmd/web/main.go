// cmd/web/main.go
//
// hostgate – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load config (conf/.env → conf/global.yaml → HOSTGATE_ env), resolving
//     vault: references when VAULT_ADDR is set.
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Open the control-plane DB (MySQL or Postgres) with connect retries.
//
//  4. Build the tenant cache (memory LRU or Redis) and the Resolver, warm
//     it from the active-site list when configured, and start the sweeper.
//
//  5. Pick the invalidation publisher: Redis pub/sub bus when redis.addr is
//     set, local otherwise.
//
//  6. Build the router:
//
//     • /metrics                 – Prometheus
//     • /_gate/*                 – admin hooks (bearer token, rate limited)
//     • everything else          – ForceHTTPS → tenant gate → components,
//       then the upstream proxy
//
//  7. Serve until SIGINT or SIGTERM, then drain gracefully.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/admin"
	"github.com/yanizio/hostgate/internal/component"
	"github.com/yanizio/hostgate/internal/config"
	"github.com/yanizio/hostgate/internal/database"
	"github.com/yanizio/hostgate/internal/gate"
	"github.com/yanizio/hostgate/internal/invalidate"
	"github.com/yanizio/hostgate/internal/logger"
	"github.com/yanizio/hostgate/internal/middleware"
	"github.com/yanizio/hostgate/internal/requestinfo"
	"github.com/yanizio/hostgate/internal/server"
	"github.com/yanizio/hostgate/internal/tenant"
	"github.com/yanizio/hostgate/internal/vault"

	_ "github.com/yanizio/hostgate/components/whoami" // debug echo
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("hostgate: %v", err)
	}
}

func run(ctx context.Context) error {
	//
	// ── 1.  Config (+ Vault) ────────────────────────────────────────────
	//
	var secrets config.Secrets
	if os.Getenv("VAULT_ADDR") != "" {
		vc, err := vault.New(ctx, nil)
		if err != nil {
			return err
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		return err
	}

	//
	// ── 2.  Logger ──────────────────────────────────────────────────────
	//
	sugar, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Log.Level)
	if err != nil {
		return err
	}
	lg := sugar.Desugar()
	defer func() { _ = lg.Sync() }()

	//
	// ── 3.  Control-plane DB ────────────────────────────────────────────
	//
	db, err := database.Open(ctx, database.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN(),
		MaxOpen:         cfg.Database.MaxOpen,
		MaxIdle:         cfg.Database.MaxIdle,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectRetries:  cfg.Database.ConnectRetries,
	}, lg)
	if err != nil {
		return err
	}
	defer db.Close()
	lg.Info("control-plane DB online", zap.String("driver", cfg.Database.Driver))

	//
	// ── 4.  Tenant cache and resolver ───────────────────────────────────
	//
	var rdb redis.UniversalClient
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}

	clk := clock.New()
	var store tenant.Store
	if cfg.Cache.Backend == "redis" {
		store = tenant.NewRedisStore(rdb, cfg.Redis.KeyPrefix, cfg.Cache.TTL, lg)
	} else {
		mem := tenant.NewMemoryStore(cfg.Cache.TTL, cfg.Cache.MaxEntries, clk)
		go tenant.RunSweeper(ctx, mem, cfg.Cache.SweepInterval, clk, lg)
		store = mem
	}

	res := tenant.NewResolver(tenant.NewSQLClient(db, lg), store, tenant.Options{
		Timeout:            cfg.Resolver.Timeout,
		Retries:            cfg.Resolver.Retries,
		RetryBackoff:       cfg.Resolver.RetryBackoff,
		NegativeTTL:        cfg.Cache.NegativeTTL,
		NegativeMaxEntries: cfg.Cache.NegativeMaxEntries,
		LoopbackAliases:    cfg.Resolver.Aliases(),
		Clock:              clk,
		Logger:             lg,
	})
	if cfg.Cache.WarmOnStart {
		if _, err := res.Warm(ctx); err != nil {
			lg.Warn("cache warm-up failed; continuing cold", zap.Error(err))
		}
	}

	//
	// ── 5.  Invalidation publisher ──────────────────────────────────────
	//
	var pub invalidate.Publisher = invalidate.Local{Target: res}
	if rdb != nil {
		bus := invalidate.NewBus(rdb, cfg.Redis.Channel, res, lg)
		go func() {
			if err := bus.Run(ctx); err != nil {
				lg.Error("invalidation bus stopped", zap.Error(err))
			}
		}()
		pub = bus
	}

	//
	// ── 6.  Gate, admin, and router ─────────────────────────────────────
	//
	var previewer *gate.Previewer
	if cfg.Gate.PreviewSecret != "" {
		previewer = gate.NewPreviewer(cfg.Gate.PreviewSecret, cfg.Gate.PreviewTTL)
	}
	g := gate.New(res, gate.Options{
		MaintenancePath: cfg.Gate.MaintenancePath,
		Previewer:       previewer,
		Logger:          lg,
	})

	var geo *geoip2.Reader
	if cfg.Geo.DBPath != "" {
		if geo, err = requestinfo.OpenGeo(cfg.Geo.DBPath); err != nil {
			lg.Warn("geo database unavailable; continuing without geolocation",
				zap.String("path", cfg.Geo.DBPath), zap.Error(err))
			geo = nil
		} else {
			defer geo.Close()
		}
	}

	downstream, err := upstream(cfg.HTTP.Upstream, lg)
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestinfo.NewEnricher(geo).Handler)
	r.Use(middleware.Security(cfg.HTTP.ForceHTTPS))

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/_gate", admin.New(admin.Options{
		Token:     cfg.HTTP.AdminToken,
		RateLimit: cfg.HTTP.AdminRateLimit,
		Publisher: pub,
		Cache:     res,
		Previewer: previewer,
		Logger:    lg,
	}).Routes())

	r.Group(func(site chi.Router) {
		if cfg.HTTP.ForceHTTPS {
			site.Use(func(next http.Handler) http.Handler { return middleware.ForceHTTPS(res, next) })
		}
		site.Use(middleware.Tenant(g, lg))
		component.Mount(site)
		site.Handle("/*", downstream)
	})

	//
	// ── 7.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r, server.Timeouts{
		Read:     cfg.HTTP.ReadTimeout,
		Write:    cfg.HTTP.WriteTimeout,
		Idle:     cfg.HTTP.IdleTimeout,
		Shutdown: cfg.HTTP.ShutdownTimeout,
	})
	if err := server.Run(ctx, srv, cfg.HTTP.ShutdownTimeout, lg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	lg.Info("hostgate stopped")
	return nil
}
