// internal/tenant/loader.go
//
// Configuration client: domain or id → meta.Record.
//
// Context
// -------
// The client knows nothing about caching.  It runs the control-plane
// queries, assembles one Record, and classifies failures into exactly two
// buckets:
//
//   - ErrNotFound         – no site answers; durable.
//   - ErrStoreUnavailable – anything else, including deadline expiry.
//
// Workflow (FetchByDomain)
// ------------------------
//  1. Fetch every site row matching the primary or an alternate domain.
//  2. Pick the first row (non-archived first, tenant_id ascending).  Two
//     live matches is a data problem upstream and is logged.
//  3. Fetch alternate domains.
//  4. Fetch and fold settings; invalid known settings are dropped and
//     logged.
//
// Notes
// -----
//   - No retries here.  Retry policy lives in the Resolver.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/tenant/meta"
)

// Client fetches site records from the configuration store.
type Client interface {
	FetchByDomain(ctx context.Context, domain string) (meta.Record, error)
	FetchByID(ctx context.Context, tenantID string) (meta.Record, error)
}

// Lister is implemented by clients that can enumerate active sites for
// cache warm-up.
type Lister interface {
	ListActive(ctx context.Context) ([]meta.Record, error)
}

// SQLClient implements Client and Lister over the control-plane database.
type SQLClient struct {
	db  *sqlx.DB
	log *zap.Logger
}

// NewSQLClient wraps db.  A nil logger falls back to zap.L().
func NewSQLClient(db *sqlx.DB, log *zap.Logger) *SQLClient {
	if log == nil {
		log = zap.L()
	}
	return &SQLClient{db: db, log: log.Named("tenant.store")}
}

// FetchByDomain returns the site answering to domain.
func (c *SQLClient) FetchByDomain(ctx context.Context, domain string) (meta.Record, error) {
	rows, err := meta.ByDomain(ctx, c.db, domain)
	if err != nil {
		return meta.Record{}, unavailable(err)
	}
	if len(rows) == 0 {
		return meta.Record{}, ErrNotFound
	}
	if live := countLive(rows); live > 1 {
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.TenantID)
		}
		c.log.Warn("domain matches several live sites; using first",
			zap.String("domain", domain),
			zap.Strings("tenant_ids", ids),
			zap.String("chosen", rows[0].TenantID))
	}
	return c.complete(ctx, rows[0])
}

// FetchByID returns the site with the given tenant id.
func (c *SQLClient) FetchByID(ctx context.Context, tenantID string) (meta.Record, error) {
	rec, err := meta.ByID(ctx, c.db, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return meta.Record{}, ErrNotFound
	}
	if err != nil {
		return meta.Record{}, unavailable(err)
	}
	return c.complete(ctx, *rec)
}

// ListActive returns every active site, fully assembled.
func (c *SQLClient) ListActive(ctx context.Context) ([]meta.Record, error) {
	rows, err := meta.AllActive(ctx, c.db)
	if err != nil {
		return nil, unavailable(err)
	}
	out := make([]meta.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := c.complete(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// complete normalizes status and attaches alternate domains and settings.
func (c *SQLClient) complete(ctx context.Context, rec meta.Record) (meta.Record, error) {
	raw := string(rec.Status)
	st, ok := meta.ParseStatus(raw)
	if !ok {
		c.log.Warn("unknown site status; treating as inactive",
			zap.String("tenant_id", rec.TenantID),
			zap.String("status", raw))
	}
	rec.Status = st
	rec.Domain = NormalizeHost(rec.Domain)

	alts, err := meta.DomainsBySite(ctx, c.db, rec.TenantID)
	if err != nil {
		return meta.Record{}, unavailable(err)
	}
	rec.AlternateDomains = alts

	settings, dropped, err := meta.SettingsBySite(ctx, c.db, rec.TenantID)
	if err != nil {
		return meta.Record{}, unavailable(err)
	}
	if len(dropped) > 0 {
		c.log.Warn("invalid site settings dropped",
			zap.String("tenant_id", rec.TenantID),
			zap.Strings("settings", dropped))
	}
	rec.Settings = settings
	return rec, nil
}

func countLive(rows []meta.Record) int {
	n := 0
	for _, r := range rows {
		if st, _ := meta.ParseStatus(string(r.Status)); st != meta.StatusArchived {
			n++
		}
	}
	return n
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
