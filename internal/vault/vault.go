// internal/vault/vault.go
//
// Vault client wrapper for hostgate.
//
// Context
// -------
//   - Wraps the HashiCorp Vault Go SDK behind a small, concurrency-safe
//     client that the config loader uses to turn `vault:` references into
//     plain strings at boot.
//   - Adds background token renewal, a KV-v2 getter, and per-key caching.
//   - References look like `secret/hostgate#db_password`: KV-v2 mount,
//     path under the mount, and the key inside the secret.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, log)            // during boot, if VAULT_ADDR is set.
//  2. cfg, err := config.Load(ctx, cli)          // Lookup runs for each vault: value.
//  3. pw,  err := cli.GetKV(ctx, path, key, ttl) // anywhere else.
//
// Notes
// -----
//   - Oxford commas, two spaces after periods.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// lookupTTL caches config lookups briefly so a reload burst hits Vault once.
const lookupTTL = time.Minute

var ErrBadRef = errors.New("vault reference must look like mount/path#key")

// kvReader is the slice of the SDK GetKV needs.
type kvReader interface {
	Get(ctx context.Context, mount, path string) (map[string]any, error)
}

type apiReader struct{ api *vault.Client }

func (a apiReader) Get(ctx context.Context, mount, path string) (map[string]any, error) {
	sec, err := a.api.KVv2(mount).Get(ctx, path)
	if err != nil {
		return nil, err
	}
	return sec.Data, nil
}

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client
	kv  kvReader
	log *zap.Logger
	now func() time.Time

	cacheMu sync.RWMutex
	cache   map[string]cached // path#key → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New constructs a Vault client from VAULT_ADDR / VAULT_TOKEN and starts a
// background token-renewal loop bound to ctx.
func New(ctx context.Context, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.L()
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	c := newClient(apiReader{api: apiCli}, log)
	c.api = apiCli
	go c.renewLoop(ctx)
	return c, nil
}

func newClient(kv kvReader, log *zap.Logger) *Client {
	return &Client{
		kv:    kv,
		log:   log.Named("vault"),
		now:   time.Now,
		cache: make(map[string]cached),
	}
}

// Lookup resolves a "mount/path#key" reference.
func (c *Client) Lookup(ctx context.Context, ref string) (string, error) {
	path, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}
	return c.GetKV(ctx, path, key, lookupTTL)
}

// GetKV fetches a single key from a KV-v2 secret.  If ttl > 0 the result is
// cached for that duration.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if ttl > 0 {
		c.cacheMu.RLock()
		cv, ok := c.cache[canonical]
		c.cacheMu.RUnlock()
		if ok && c.now().Before(cv.exp) {
			return cv.val, nil
		}
	}

	mount, rel := splitMount(secretPath)
	data, err := c.kv.Get(ctx, mount, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %q", key, secretPath)
	}
	sval, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s is not a string", canonical)
	}

	if ttl > 0 {
		c.cacheMu.Lock()
		c.cache[canonical] = cached{val: sval, exp: c.now().Add(ttl)}
		c.cacheMu.Unlock()
	}
	return sval, nil
}

// ParseRef splits "mount/path#key" into the secret path and the key.
func ParseRef(ref string) (path, key string, err error) {
	path, key, ok := strings.Cut(strings.TrimSpace(ref), "#")
	if !ok || key == "" || !strings.Contains(path, "/") || strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	return path, key, nil
}

//
// SECTION 2.  Background token renewal
//

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		wait := c.renewOnce(ctx)
		sleep(ctx, wait)
	}
}

// renewOnce runs one renewer lifetime and returns how long to wait before
// probing again.
func (c *Client) renewOnce(ctx context.Context) time.Duration {
	sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
	if err != nil {
		c.log.Warn("token renew-self failed", zap.Error(err))
		return 30 * time.Second
	}
	if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
		c.log.Info("token is not renewable; probing again in 1h")
		return time.Hour
	}

	watcher, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{
		Secret: sec,
	})
	if err != nil {
		c.log.Warn("lifetime watcher init failed", zap.Error(err))
		return 30 * time.Second
	}
	go watcher.Start()
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case err := <-watcher.DoneCh():
			if err != nil {
				c.log.Warn("token renewal stopped", zap.Error(err))
			}
			return 15 * time.Second
		case ev := <-watcher.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debug("token renewed", zap.Int("ttl_seconds", ev.Secret.Auth.LeaseDuration))
			}
		}
	}
}

//
// SECTION 3.  Helpers
//

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
