// Package database centralises sqlx connection helpers for the global
// control-plane database that holds the tenant table.
//
// Two drivers are registered: go-sql-driver/mysql (also MariaDB and any
// server speaking the MySQL wire protocol) and lib/pq for PostgreSQL.  The
// driver name comes from config (`database.driver`).
//
// Public entry points:
//
//	Open(ctx, opts, log)   – open, size the pool, and Ping with retries.
//
// Open pings before returning so bootstrap fails fast when the store is
// down for longer than the retry budget.  Callers should Close() the
// returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Supported driver names.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
)

// ErrUnknownDriver is returned for a driver other than MySQL or Postgres.
var ErrUnknownDriver = errors.New("database: unknown driver")

// Options sizes the pool and the connect retry budget.  Zero values take
// the defaults: 15 open, 5 idle, 30-minute lifetime, no retries.
type Options struct {
	Driver          string
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
	RetryInterval   time.Duration // first backoff step; default 500 ms
}

// Open returns a pinged *sqlx.DB.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*sqlx.DB, error) {
	switch opts.Driver {
	case MySQL, Postgres:
	case "":
		opts.Driver = MySQL
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	db, err := sqlx.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}
	if err := connect(ctx, db, opts, log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// connect applies pool limits and pings until the store answers or the
// retry budget is spent.
func connect(ctx context.Context, db *sqlx.DB, opts Options, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 15
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 500 * time.Millisecond
	}

	db.SetMaxOpenConns(opts.MaxOpen)
	db.SetMaxIdleConns(opts.MaxIdle)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.RetryInterval
	eb.MaxElapsedTime = 0
	var bo backoff.BackOff = backoff.WithMaxRetries(eb, uint64(opts.ConnectRetries))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := db.PingContext(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("database ping failed",
				zap.String("driver", opts.Driver),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
}
