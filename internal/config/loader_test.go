package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
http:
  listen_addr: ":8080"
database:
  global_dsn: "gate:%s@tcp(127.0.0.1:3306)/control?parseTime=true"
  global_password: "vault:secret/hostgate#db_password"
resolver:
  localhost_aliases:
    - "localhost:3000=a.example.com"
    - "app.localhost=b.example.com"
`

type fakeSecrets map[string]string

func (f fakeSecrets) Lookup(_ context.Context, ref string) (string, error) {
	v, ok := f[ref]
	if !ok {
		return "", errors.New("no such secret " + ref)
	}
	return v, nil
}

func writeRoot(t *testing.T, yaml string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

var secrets = fakeSecrets{"secret/hostgate#db_password": "pw"}

func TestLoadFrom_DefaultsAndSecrets(t *testing.T) {
	root := writeRoot(t, baseYAML)

	cfg, err := LoadFrom(context.Background(), root, secrets)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Database.GlobalPassword != "pw" {
		t.Fatalf("vault ref not resolved: %q", cfg.Database.GlobalPassword)
	}
	if got := cfg.Database.DSN(); got != "gate:pw@tcp(127.0.0.1:3306)/control?parseTime=true" {
		t.Fatalf("DSN = %q", got)
	}
	if cfg.Database.Driver != "mysql" || cfg.Cache.Backend != "memory" {
		t.Fatalf("defaults not applied: %+v / %+v", cfg.Database, cfg.Cache)
	}
	if cfg.Cache.TTL != 5*time.Minute || cfg.Resolver.Timeout != 2*time.Second {
		t.Fatalf("duration defaults: ttl=%v timeout=%v", cfg.Cache.TTL, cfg.Resolver.Timeout)
	}
	if cfg.Gate.MaintenancePath != "/maintenance" {
		t.Fatalf("maintenance path = %q", cfg.Gate.MaintenancePath)
	}
	aliases := cfg.Resolver.Aliases()
	if aliases["localhost:3000"] != "a.example.com" || aliases["app.localhost"] != "b.example.com" {
		t.Fatalf("aliases = %v", aliases)
	}
	if cfg.Paths.Root != root || Get() != cfg {
		t.Fatal("config not cached")
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	root := writeRoot(t, baseYAML)
	t.Setenv("HOSTGATE_CACHE__TTL", "30s")
	t.Setenv("HOSTGATE_CACHE__NEGATIVE_TTL", "5s")
	t.Setenv("HOSTGATE_RESOLVER__RETRIES", "2")
	t.Setenv("HOSTGATE_HTTP__FORCE_HTTPS", "true")

	cfg, err := LoadFrom(context.Background(), root, secrets)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Cache.TTL != 30*time.Second || cfg.Cache.NegativeTTL != 5*time.Second {
		t.Fatalf("cache = %+v", cfg.Cache)
	}
	if cfg.Resolver.Retries != 2 || !cfg.HTTP.ForceHTTPS {
		t.Fatalf("overrides lost: retries=%d force_https=%v", cfg.Resolver.Retries, cfg.HTTP.ForceHTTPS)
	}
}

func TestLoadFrom_VaultRefWithoutClient(t *testing.T) {
	root := writeRoot(t, baseYAML)
	if _, err := LoadFrom(context.Background(), root, nil); !errors.Is(err, ErrNoSecrets) {
		t.Fatalf("err = %v, want ErrNoSecrets", err)
	}
}

func TestLoadFrom_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"dsn without verb": strings.Replace(baseYAML, "gate:%s@", "gate:pw@", 1),
		"redis backend without addr": baseYAML + `
cache:
  backend: redis
`,
		"bad alias": strings.Replace(baseYAML, `"app.localhost=b.example.com"`, `"app.localhost"`, 1),
		"unknown driver": strings.Replace(baseYAML, "database:\n", "database:\n  driver: sqlite\n", 1),
	}
	for name, yaml := range cases {
		root := writeRoot(t, yaml)
		if _, err := LoadFrom(context.Background(), root, secrets); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
