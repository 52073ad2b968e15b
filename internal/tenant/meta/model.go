// internal/tenant/meta/model.go
//
// Control-plane row models.
//
// Context
// -------
// The `Record` struct mirrors one row in the **site** table plus the two
// satellite tables that hang off it.  It is the value the resolver caches,
// so it must stay a plain value: no DB handles, no pointers into shared
// state.  Slices and maps are copied by Clone before a record leaves the
// cache.
//
// Schema reference
//
//	CREATE TABLE site (
//	    tenant_id   VARCHAR(64)   PRIMARY KEY,
//	    domain      VARCHAR(253)  NOT NULL,
//	    status      VARCHAR(16)   NOT NULL DEFAULT 'draft',
//	    theme       VARCHAR(128)  NOT NULL DEFAULT 'base',
//	    created_at  TIMESTAMP     NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at  TIMESTAMP     NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//	CREATE TABLE site_domain (
//	    tenant_id   VARCHAR(64)   NOT NULL REFERENCES site(tenant_id),
//	    domain      VARCHAR(253)  NOT NULL,
//	    PRIMARY KEY (domain, tenant_id)
//	);
//	CREATE TABLE site_config (
//	    tenant_id   VARCHAR(64)   NOT NULL REFERENCES site(tenant_id),
//	    name        VARCHAR(64)   NOT NULL,
//	    value       TEXT          NOT NULL,
//	    PRIMARY KEY (tenant_id, name)
//	);
//
// Notes
// -----
//   - Domains are stored lower-case; queries still compare with LOWER().
//   - "Deleting" a site means status = 'archived'.  Rows are never removed
//     by this service.
//   - Oxford commas, two spaces after periods.
package meta

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a site.
type Status string

const (
	StatusActive      Status = "active"
	StatusInactive    Status = "inactive"
	StatusMaintenance Status = "maintenance"
	StatusDraft       Status = "draft"
	StatusPreview     Status = "preview"
	StatusArchived    Status = "archived"
)

// ParseStatus maps a raw column value to a Status.  ok is false for
// anything outside the known set.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusMaintenance,
		StatusDraft, StatusPreview, StatusArchived:
		return st, true
	}
	return StatusInactive, false
}

// Record mirrors one `site` row with its alternate domains and settings.
type Record struct {
	TenantID         string    `db:"tenant_id" json:"tenant_id"`
	Domain           string    `db:"domain"    json:"domain"`
	Status           Status    `db:"status"    json:"status"`
	ThemeRef         string    `db:"theme"     json:"theme"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
	AlternateDomains []string  `db:"-"         json:"alternate_domains,omitempty"`
	Settings         Settings  `db:"-"         json:"settings"`
}

// Domains returns the primary domain followed by every alternate.
func (r Record) Domains() []string {
	out := make([]string, 0, 1+len(r.AlternateDomains))
	out = append(out, r.Domain)
	return append(out, r.AlternateDomains...)
}

// Clone returns a deep copy so callers can never mutate a cached value.
func (r Record) Clone() Record {
	if r.AlternateDomains != nil {
		r.AlternateDomains = append([]string(nil), r.AlternateDomains...)
	}
	if r.Settings.Custom != nil {
		custom := make(map[string]string, len(r.Settings.Custom))
		for k, v := range r.Settings.Custom {
			custom[k] = v
		}
		r.Settings.Custom = custom
	}
	return r
}
