// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance and applies
// defaults.  Any tag mismatch or validation error aborts startup, so the
// binary never runs with partial, malformed, or missing configuration.
//
// Custom rules registered here:
//
//   • dsn_template – the DSN contains exactly one %s verb (the password).
//   • alias_pair   – "from=to" with both halves non-empty.
//   • struct level – cache.backend=redis requires redis.addr.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("dsn_template", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return strings.Count(s, "%s") == 1 && strings.Count(s, "%") == 1
	})
	_ = val.RegisterValidation("alias_pair", func(fl validator.FieldLevel) bool {
		from, to, ok := strings.Cut(fl.Field().String(), "=")
		return ok && strings.TrimSpace(from) != "" && strings.TrimSpace(to) != ""
	})
	val.RegisterStructValidation(func(sl validator.StructLevel) {
		c := sl.Current().Interface().(Config)
		if c.Cache.Backend == "redis" && c.Redis.Addr == "" {
			sl.ReportError(c.Redis.Addr, "Redis.Addr", "Addr", "required_for_redis_cache", "")
		}
	}, Config{})
	return val
}

//
// public API
//

// validateStruct returns the validation errors, or nil on success.
func validateStruct(c *Config) error {
	return v.Struct(c)
}
