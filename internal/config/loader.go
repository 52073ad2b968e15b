// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/global.yaml`.
  3. Environment variables prefixed `HOSTGATE_`, where `__` maps to “.”
     (e.g., `HOSTGATE_CACHE__TTL → cache.ttl`).

After merging, every string value of the form `vault:<mount>/<path>#<key>`
is swapped for the secret it names.  The tree is then unmarshalled into
strongly-typed structs, defaulted, validated, enriched with the runtime
root path, and cached in an `atomic.Pointer` for lock-free reads.
`Reload()` simply calls `Load()` again and swaps the pointer.

Instrumentation
---------------
  • DEBUG spans – root discovery, YAML read, env overlay, vault refs.
  • ERROR spans – YAML parse, env overlay, vault, unmarshal, validation.
  • INFO  span  – final “config loaded” with key highlights.
  • Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  • `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  • Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	envPrefix   = "HOSTGATE_"
	vaultPrefix = "vault:"
)

// ErrNoSecrets is returned when the tree holds vault: references but no
// Secrets source was supplied.
var ErrNoSecrets = errors.New("config references vault but no vault client is configured")

// Secrets resolves a "mount/path#key" reference.  *vault.Client satisfies it.
type Secrets interface {
	Lookup(ctx context.Context, ref string) (string, error)
}

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves HOSTGATE_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load discovers the root and loads from it.  secrets may be nil when the
// configuration holds no vault: references.
func Load(ctx context.Context, secrets Secrets) (*Config, error) {
	return LoadFrom(ctx, rootDir(), secrets)
}

// LoadFrom reads .env, YAML, env overrides, and vault refs under root,
// validates, and caches Config.
func LoadFrom(ctx context.Context, root string, secrets Secrets) (*Config, error) {
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: HOSTGATE_CACHE__TTL → cache.ttl
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s, envPrefix), "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.applyDefaults()
	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"force_https", cfg.HTTP.ForceHTTPS,
		"db_driver", cfg.Database.Driver,
		"cache_backend", cfg.Cache.Backend,
		"cache_ttl", cfg.Cache.TTL,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every vault: value in k.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets Secrets) error {
	for key, val := range k.All() {
		s, ok := val.(string)
		if !ok || !strings.HasPrefix(s, vaultPrefix) {
			continue
		}
		if secrets == nil {
			return fmt.Errorf("%w: %s", ErrNoSecrets, key)
		}
		ref := strings.TrimPrefix(s, vaultPrefix)
		secret, err := secrets.Lookup(ctx, ref)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", key, err)
		}
		if err := k.Set(key, secret); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		zap.S().Debugw("config value resolved from vault", "key", key)
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

func Reload(ctx context.Context, secrets Secrets) error {
	_, err := Load(ctx, secrets)
	return err
}
