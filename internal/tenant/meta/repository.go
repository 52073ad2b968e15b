// internal/tenant/meta/repository.go
//
// Site-table query helpers.
//
// Context
// -------
// These functions provide read-only access to the control-plane tables.
// They return rows as stored, including archived ones, and leave lifecycle
// interpretation to the caller:
//
//   - `ByDomain`       – every site whose primary or alternate domain matches.
//   - `ByID`           – one site by tenant id.
//   - `AllActive`      – cache warm-up.
//   - `DomainsBySite`  – alternate domains for one site.
//
// Notes
// -----
//   - Queries are written with `?` placeholders and passed through
//     db.Rebind, so the same text runs on MySQL and Postgres.
//   - Errors are returned verbatim; the caller classifies them.
//   - Oxford commas, two spaces after periods.
package meta

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const siteColumns = `s.tenant_id, s.domain, s.status, s.theme, s.updated_at`

// ByDomain returns every site that answers to domain, non-archived rows
// first, then by tenant_id ascending.  An empty slice means no match.  More
// than one row is already a data integrity problem; LIMIT only keeps a
// broken table from flooding the caller.
func ByDomain(ctx context.Context, db *sqlx.DB, domain string) ([]Record, error) {
	q := db.Rebind(`
        SELECT ` + siteColumns + `
        FROM   site s
        WHERE  LOWER(s.domain) = ?
           OR  s.tenant_id IN (SELECT d.tenant_id FROM site_domain d WHERE LOWER(d.domain) = ?)
        ORDER  BY CASE WHEN LOWER(s.status) = 'archived' THEN 1 ELSE 0 END, s.tenant_id
        LIMIT  8`)
	rows := make([]Record, 0, 1)
	if err := db.SelectContext(ctx, &rows, q, domain, domain); err != nil {
		return nil, err
	}
	return rows, nil
}

// ByID fetches one site row.  sql.ErrNoRows is returned when absent.
func ByID(ctx context.Context, db *sqlx.DB, tenantID string) (*Record, error) {
	q := db.Rebind(`
        SELECT ` + siteColumns + `
        FROM   site s
        WHERE  s.tenant_id = ?
        LIMIT  1`)
	var rec Record
	if err := db.GetContext(ctx, &rec, q, tenantID); err != nil {
		return nil, err
	}
	return &rec, nil
}

// AllActive returns every site whose status is 'active'.  Intended for
// warm-up and batch jobs, not the per-request path.
func AllActive(ctx context.Context, db *sqlx.DB) ([]Record, error) {
	q := db.Rebind(`
        SELECT ` + siteColumns + `
        FROM   site s
        WHERE  s.status = ?
        ORDER  BY s.tenant_id`)
	var rows []Record
	if err := db.SelectContext(ctx, &rows, q, string(StatusActive)); err != nil {
		return nil, err
	}
	return rows, nil
}

// DomainsBySite returns the alternate domains of one site, sorted.
func DomainsBySite(ctx context.Context, db *sqlx.DB, tenantID string) ([]string, error) {
	q := db.Rebind(`
        SELECT LOWER(d.domain)
        FROM   site_domain d
        WHERE  d.tenant_id = ?
        ORDER  BY d.domain`)
	var out []string
	if err := db.SelectContext(ctx, &out, q, tenantID); err != nil {
		return nil, err
	}
	return out, nil
}
