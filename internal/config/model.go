// internal/config/model.go
//
// Typed configuration model for hostgate.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                            – dotenv values,
//   • `conf/global.yaml`                         – primary static file,
//   • `HOSTGATE_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// Zero durations and counts are filled from the package defaults by
// applyDefaults, then the whole tree is validated.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.
package config

import (
	"fmt"
	"strings"
	"time"
)

//
// HTTP section
//

// HTTP holds web-server tunables.  An empty AdminToken disables the
// /_gate admin routes.  Admitted requests are proxied to Upstream; with no
// upstream they get a plain-text acknowledgement naming the tenant.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	Upstream        string        `koanf:"upstream"         validate:"omitempty,url"`
	ForceHTTPS      bool          `koanf:"force_https"`
	AdminToken      string        `koanf:"admin_token"`
	AdminRateLimit  int           `koanf:"admin_rate_limit" validate:"gte=0"` // requests per minute per IP
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

//
// Database section
//

// Database holds the control-plane DSN template and its secret.
//
// The *template* (`GlobalDSN`) is kept in YAML so operators can tweak
// host, port, or flags without touching Vault.  The *secret* portion
// (`GlobalPassword`) usually comes from Vault and is spliced into the one
// `%s` verb of the template at connect time.
type Database struct {
	Driver          string        `koanf:"driver"            validate:"oneof=mysql postgres"`
	GlobalDSN       string        `koanf:"global_dsn"        validate:"required,dsn_template"`
	GlobalPassword  string        `koanf:"global_password"   validate:"required"`
	MaxOpen         int           `koanf:"max_open"          validate:"gte=1"`
	MaxIdle         int           `koanf:"max_idle"          validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectRetries  int           `koanf:"connect_retries"   validate:"gte=0"`
}

// DSN returns the template with the password filled in.
func (d Database) DSN() string { return fmt.Sprintf(d.GlobalDSN, d.GlobalPassword) }

//
// Cache section
//

// Cache selects and sizes the tenant cache.  NegativeTTL > 0 turns on
// caching of unknown domains.
type Cache struct {
	Backend            string        `koanf:"backend"              validate:"oneof=memory redis"`
	TTL                time.Duration `koanf:"ttl"                  validate:"gt=0"`
	MaxEntries         int           `koanf:"max_entries"          validate:"gte=1"`
	NegativeTTL        time.Duration `koanf:"negative_ttl"         validate:"gte=0"`
	NegativeMaxEntries int           `koanf:"negative_max_entries" validate:"gte=0"`
	SweepInterval      time.Duration `koanf:"sweep_interval"       validate:"gte=0"`
	WarmOnStart        bool          `koanf:"warm_on_start"`
}

//
// Resolver section
//

// Resolver tunes store lookups.  LocalhostAliases entries have the form
// "localhost:3000=site.example.com".
type Resolver struct {
	Timeout          time.Duration `koanf:"timeout"           validate:"gt=0"`
	Retries          int           `koanf:"retries"           validate:"gte=0,lte=10"`
	RetryBackoff     time.Duration `koanf:"retry_backoff"     validate:"gte=0"`
	LocalhostAliases []string      `koanf:"localhost_aliases" validate:"dive,alias_pair"`
}

// Aliases parses LocalhostAliases.  Entries were validated at load.
func (r Resolver) Aliases() map[string]string {
	out := make(map[string]string, len(r.LocalhostAliases))
	for _, a := range r.LocalhostAliases {
		if from, to, ok := strings.Cut(a, "="); ok {
			out[strings.TrimSpace(from)] = strings.TrimSpace(to)
		}
	}
	return out
}

//
// Gate section
//

// Gate holds status-gate settings.  An empty PreviewSecret disables
// preview tokens.
type Gate struct {
	MaintenancePath string        `koanf:"maintenance_path" validate:"startswith=/"`
	PreviewSecret   string        `koanf:"preview_secret"   validate:"omitempty,min=16"`
	PreviewTTL      time.Duration `koanf:"preview_ttl"      validate:"gte=0"`
}

//
// Redis section
//

// Redis is required when Cache.Backend is "redis" and optional otherwise;
// a set Addr also enables the invalidation bus.
type Redis struct {
	Addr      string `koanf:"addr"       validate:"omitempty,hostname_port"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"         validate:"gte=0"`
	KeyPrefix string `koanf:"key_prefix"`
	Channel   string `koanf:"channel"`
}

//
// Geo and Log sections
//

// Geo points at an optional GeoLite2-City database for request logs.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

// Log tunes the process logger.
type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // HOSTGATE_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Cache    Cache    `koanf:"cache"`
	Resolver Resolver `koanf:"resolver"`
	Gate     Gate     `koanf:"gate"`
	Redis    Redis    `koanf:"redis"`
	Geo      Geo      `koanf:"geo"`
	Log      Log      `koanf:"log"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills zero values that have a sensible default.
func (c *Config) applyDefaults() {
	def := func(d *time.Duration, v time.Duration) {
		if *d == 0 {
			*d = v
		}
	}
	defStr := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}

	def(&c.HTTP.ReadTimeout, 10*time.Second)
	def(&c.HTTP.WriteTimeout, 15*time.Second)
	def(&c.HTTP.IdleTimeout, 60*time.Second)
	def(&c.HTTP.ShutdownTimeout, 10*time.Second)
	if c.HTTP.AdminRateLimit == 0 {
		c.HTTP.AdminRateLimit = 60
	}

	defStr(&c.Database.Driver, "mysql")
	if c.Database.MaxOpen == 0 {
		c.Database.MaxOpen = 15
	}
	if c.Database.MaxIdle == 0 {
		c.Database.MaxIdle = 5
	}
	def(&c.Database.ConnMaxLifetime, 30*time.Minute)

	defStr(&c.Cache.Backend, "memory")
	def(&c.Cache.TTL, 5*time.Minute)
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 1000
	}

	def(&c.Resolver.Timeout, 2*time.Second)
	def(&c.Resolver.RetryBackoff, 50*time.Millisecond)

	defStr(&c.Gate.MaintenancePath, "/maintenance")
	def(&c.Gate.PreviewTTL, time.Hour)

	defStr(&c.Redis.KeyPrefix, "hostgate:")
	defStr(&c.Redis.Channel, "hostgate:invalidate")

	defStr(&c.Log.Level, "info")
}
