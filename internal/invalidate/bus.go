// internal/invalidate/bus.go
//
// Cache invalidation fan-out.
//
// Context
// -------
// Each instance holds its own tenant cache, so an invalidation issued on
// one instance must reach the others or they keep serving the old record
// until TTL.  Bus carries invalidations over a Redis pub/sub channel:
//
//  1. Publish applies the message to the local Target,
//  2. stamps it with this instance's origin id, and
//  3. PUBLISHes it as JSON.
//
// Run subscribes to the same channel and applies every message whose origin
// is not this instance.  Pub/sub is at-most-once; a message lost while an
// instance is disconnected is covered by TTL expiry.
//
// Local is the single-instance Publisher used when Redis is not configured.
//
// Notes
// -----
//   - Message order across instances is not guaranteed.
//   - Oxford commas, two spaces after periods.
package invalidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "hostgate:invalidate"

// Scope selects what a Message invalidates.
type Scope string

const (
	ScopeDomain  Scope = "domain"
	ScopeTenant  Scope = "tenant"
	ScopeAll     Scope = "all"
	ScopeRefresh Scope = "refresh"
)

var (
	ErrUnknownScope = errors.New("unknown invalidation scope")
	// ErrBroadcast marks a Publish that applied locally but did not reach
	// the channel.
	ErrBroadcast = errors.New("invalidation broadcast failed")
)

// Message is one invalidation request.  Value is the domain or tenant id;
// empty for ScopeAll.
type Message struct {
	Origin string    `json:"origin,omitempty"`
	Scope  Scope     `json:"scope"`
	Value  string    `json:"value,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

// Domain, Tenant, All, and Refresh build Messages.
func Domain(d string) Message { return Message{Scope: ScopeDomain, Value: d} }
func Tenant(id string) Message { return Message{Scope: ScopeTenant, Value: id} }
func All() Message { return Message{Scope: ScopeAll} }
func Refresh(id string) Message { return Message{Scope: ScopeRefresh, Value: id} }

// Result reports what a local apply did.
type Result struct {
	Removed int `json:"removed"`
}

// Target is what invalidations act on; *tenant.Resolver satisfies it.
type Target interface {
	InvalidateDomain(ctx context.Context, domain string)
	InvalidateTenant(ctx context.Context, tenantID string) int
	InvalidateAll(ctx context.Context)
	Refresh(ctx context.Context, tenantID string) error
}

// Publisher applies a Message here and wherever else it should go.
type Publisher interface {
	Publish(ctx context.Context, m Message) (Result, error)
}

// Apply runs m against t.
func Apply(ctx context.Context, t Target, m Message) (Result, error) {
	switch m.Scope {
	case ScopeDomain:
		t.InvalidateDomain(ctx, m.Value)
		return Result{}, nil
	case ScopeTenant:
		return Result{Removed: t.InvalidateTenant(ctx, m.Value)}, nil
	case ScopeAll:
		t.InvalidateAll(ctx)
		return Result{}, nil
	case ScopeRefresh:
		return Result{}, t.Refresh(ctx, m.Value)
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownScope, m.Scope)
}

// Local applies Messages to one Target and nothing else.
type Local struct{ Target Target }

func (l Local) Publish(ctx context.Context, m Message) (Result, error) {
	return Apply(ctx, l.Target, m)
}

// Bus is a Publisher that also broadcasts over Redis.
type Bus struct {
	rdb     redis.UniversalClient
	channel string
	id      string
	target  Target
	log     *zap.Logger
}

// NewBus returns a Bus on channel (DefaultChannel when empty).
func NewBus(rdb redis.UniversalClient, channel string, target Target, log *zap.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = zap.L()
	}
	id := uuid.NewString()
	return &Bus{
		rdb:     rdb,
		channel: channel,
		id:      id,
		target:  target,
		log:     log.Named("invalidate").With(zap.String("origin", id)),
	}
}

// ID is this instance's origin id.
func (b *Bus) ID() string { return b.id }

// Publish applies m locally, then broadcasts it.  The local result is
// returned even when the broadcast fails.
func (b *Bus) Publish(ctx context.Context, m Message) (Result, error) {
	if m.Scope != ScopeDomain && m.Scope != ScopeTenant && m.Scope != ScopeAll && m.Scope != ScopeRefresh {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownScope, m.Scope)
	}
	res, applyErr := Apply(ctx, b.target, m)

	m.Origin = b.id
	m.SentAt = time.Now().UTC()
	raw, err := json.Marshal(m)
	if err != nil {
		return res, errors.Join(applyErr, err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		b.log.Warn("invalidation broadcast failed",
			zap.String("scope", string(m.Scope)),
			zap.String("value", m.Value),
			zap.Error(err))
		return res, errors.Join(applyErr, fmt.Errorf("%w: %w", ErrBroadcast, err))
	}
	return res, applyErr
}

// Run subscribes and applies remote messages until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.log.Info("listening for invalidations", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

func (b *Bus) handle(ctx context.Context, payload string) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.log.Warn("malformed invalidation dropped", zap.Error(err))
		return
	}
	if m.Origin == b.id {
		return
	}
	res, err := Apply(ctx, b.target, m)
	if err != nil {
		b.log.Warn("remote invalidation failed",
			zap.String("from", m.Origin),
			zap.String("scope", string(m.Scope)),
			zap.String("value", m.Value),
			zap.Error(err))
		return
	}
	b.log.Debug("remote invalidation applied",
		zap.String("from", m.Origin),
		zap.String("scope", string(m.Scope)),
		zap.String("value", m.Value),
		zap.Int("removed", res.Removed))
}
