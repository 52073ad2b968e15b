// internal/tenant/meta/config.go
//
// Per-site settings fetcher.
//
// Context
// -------
// Every site can define string settings in the `site_config` table.  A
// handful of names are known to the platform and land in typed fields of
// `Settings`; everything else is carried verbatim in `Custom` so themes can
// grow new knobs without a schema change.
//
// Workflow
// --------
//  1. `SettingsBySite` runs one `SELECT name, value FROM site_config`.
//  2. Rows are folded into `Settings` by `FoldSettings`.
//  3. Known fields are validated.  Invalid values are dropped and reported
//     back so the caller can log them; they never fail the lookup.
//
// Notes
// -----
//   - Names are case-sensitive and unique per site.
//   - Oxford commas, two spaces after periods.
package meta

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
)

// Known setting names.
const (
	SettingTitle       = "title"
	SettingLocale      = "locale"
	SettingTimezone    = "timezone"
	SettingLogoURL     = "logo_url"
	SettingAccentColor = "accent_color"
)

// Settings is the typed display configuration for a site.
type Settings struct {
	Title       string            `json:"title,omitempty"        validate:"max=256"`
	Locale      string            `json:"locale,omitempty"       validate:"omitempty,bcp47_language_tag"`
	Timezone    string            `json:"timezone,omitempty"     validate:"omitempty,timezone"`
	LogoURL     string            `json:"logo_url,omitempty"     validate:"omitempty,url"`
	AccentColor string            `json:"accent_color,omitempty" validate:"omitempty,hexcolor"`
	Custom      map[string]string `json:"custom,omitempty"`
}

var settingsValidator = validator.New()

// SettingsBySite loads and folds all `site_config` rows for one tenant.
// The second return value lists known settings that failed validation and
// were dropped.
func SettingsBySite(ctx context.Context, db *sqlx.DB, tenantID string) (Settings, []string, error) {
	q := db.Rebind(`
	    SELECT  name, value
	    FROM    site_config
	    WHERE   tenant_id = ?`)

	// Small slice cap avoids reallocations when a site uses only a handful
	// of settings.
	rows := make([]struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}, 0, 8)

	if err := db.SelectContext(ctx, &rows, q, tenantID); err != nil {
		return Settings{}, nil, err
	}

	kv := make(map[string]string, len(rows))
	for _, r := range rows {
		kv[r.Name] = r.Value
	}
	s, dropped := FoldSettings(kv)
	return s, dropped, nil
}

// FoldSettings maps name/value pairs onto Settings and validates the known
// fields, zeroing any that fail.
func FoldSettings(kv map[string]string) (Settings, []string) {
	var s Settings
	for name, value := range kv {
		switch name {
		case SettingTitle:
			s.Title = value
		case SettingLocale:
			s.Locale = value
		case SettingTimezone:
			s.Timezone = value
		case SettingLogoURL:
			s.LogoURL = value
		case SettingAccentColor:
			s.AccentColor = value
		default:
			if s.Custom == nil {
				s.Custom = make(map[string]string)
			}
			s.Custom[name] = value
		}
	}

	err := settingsValidator.Struct(s)
	if err == nil {
		return s, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return s, nil
	}

	dropped := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Title":
			s.Title = ""
			dropped = append(dropped, SettingTitle)
		case "Locale":
			s.Locale = ""
			dropped = append(dropped, SettingLocale)
		case "Timezone":
			s.Timezone = ""
			dropped = append(dropped, SettingTimezone)
		case "LogoURL":
			s.LogoURL = ""
			dropped = append(dropped, SettingLogoURL)
		case "AccentColor":
			s.AccentColor = ""
			dropped = append(dropped, SettingAccentColor)
		}
	}
	return s, dropped
}
