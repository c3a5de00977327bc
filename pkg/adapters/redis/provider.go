// Package redis binds access points stored as fields of Redis hashes.
//
// A target is a Key naming a hash; the access point name is the field. Values
// are stored JSON-encoded. Every effective write publishes on a per-field
// channel, which is what Monitor subscribes to.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/knot/internal/logging"
	"github.com/aretw0/knot/pkg/ports"
)

// DefaultPrefix is prepended to every hash key and channel.
const DefaultPrefix = "knot:"

// Key names a Redis hash used as a binding target.
type Key string

// setIfChanged writes the field and publishes only when the encoded value differs,
// so an echoed write never signals again.
var setIfChanged = backend.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if current == ARGV[2] then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('PUBLISH', ARGV[3], ARGV[2])
return 1
`)

type monitorKey struct {
	channel string
	sub     *ports.Subscription
}

// Provider implements ports.Provider and ports.Monitorer on Redis hashes.
type Provider struct {
	client *backend.Client
	prefix string
	logger *slog.Logger

	mu       sync.Mutex
	monitors map[monitorKey]*backend.PubSub
}

var (
	_ ports.Provider  = (*Provider)(nil)
	_ ports.Monitorer = (*Provider)(nil)
)

// Option configures the Provider.
type Option func(*Provider)

// WithPrefix sets the key and channel prefix.
func WithPrefix(prefix string) Option {
	return func(p *Provider) {
		p.prefix = prefix
	}
}

// WithLogger sets the logger for subscription diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a provider with its own client.
func New(address, password string, db int, opts ...Option) *Provider {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a provider from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Provider {
	p := &Provider{
		client:   client,
		prefix:   DefaultPrefix,
		logger:   logging.NewNop(),
		monitors: make(map[monitorKey]*backend.PubSub),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) key(k Key) string {
	return p.prefix + string(k)
}

func (p *Provider) channel(k Key, field string) string {
	return p.prefix + "changed:" + string(k) + ":" + field
}

// DoesSupport claims every field of a Key target.
func (p *Provider) DoesSupport(target any, name string) bool {
	k, ok := target.(Key)
	return ok && k != "" && name != ""
}

// GetValue reads and decodes a field. A missing field reads as nil.
func (p *Provider) GetValue(ctx context.Context, target any, name string) (any, error) {
	k, err := asKey(target)
	if err != nil {
		return nil, err
	}
	raw, err := p.client.HGet(ctx, p.key(k), name).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s.%s from redis: %w", k, name, err)
	}
	return decode(raw)
}

// SetValue encodes and writes a field, publishing a change only if the stored value differs.
func (p *Provider) SetValue(ctx context.Context, target any, name string, value any) error {
	k, err := asKey(target)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s.%s: %w", k, name, err)
	}
	err = setIfChanged.Run(ctx, p.client, []string{p.key(k)}, name, string(data), p.channel(k, name)).Err()
	if err != nil {
		return fmt.Errorf("failed to set %s.%s in redis: %w", k, name, err)
	}
	return nil
}

// DoesSupportMonitoring is true for every supported field.
func (p *Provider) DoesSupportMonitoring(target any, name string) bool {
	return p.DoesSupport(target, name)
}

// Monitor subscribes to the field's change channel. It returns once the
// subscription is confirmed; notifications are delivered on a dedicated goroutine.
func (p *Provider) Monitor(ctx context.Context, target any, name string, sub *ports.Subscription) error {
	k, err := asKey(target)
	if err != nil {
		return err
	}
	mk := monitorKey{channel: p.channel(k, name), sub: sub}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.monitors[mk]; exists {
		return nil
	}

	ps := p.client.Subscribe(ctx, mk.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", mk.channel, err)
	}
	p.monitors[mk] = ps

	go func() {
		for range ps.Channel() {
			sub.Notify()
		}
		p.logger.Debug("redis monitor stopped", "channel", mk.channel)
	}()
	return nil
}

// StopMonitoring closes the subscription created by Monitor.
func (p *Provider) StopMonitoring(_ context.Context, target any, name string, sub *ports.Subscription) error {
	k, err := asKey(target)
	if err != nil {
		return err
	}
	mk := monitorKey{channel: p.channel(k, name), sub: sub}

	p.mu.Lock()
	ps, ok := p.monitors[mk]
	delete(p.monitors, mk)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := ps.Close(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", mk.channel, err)
	}
	return nil
}

// Snapshot returns every decoded field of a hash.
func (p *Provider) Snapshot(ctx context.Context, k Key) (map[string]any, error) {
	raw, err := p.client.HGetAll(ctx, p.key(k)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from redis: %w", k, err)
	}
	out := make(map[string]any, len(raw))
	for field, data := range raw {
		v, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", k, field, err)
		}
		out[field] = v
	}
	return out, nil
}

// Monitors returns the number of open subscriptions.
func (p *Provider) Monitors() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.monitors)
}

// Close releases every subscription and the client.
func (p *Provider) Close() error {
	p.mu.Lock()
	monitors := p.monitors
	p.monitors = make(map[monitorKey]*backend.PubSub)
	p.mu.Unlock()

	var errs []error
	for _, ps := range monitors {
		errs = append(errs, ps.Close())
	}
	errs = append(errs, p.client.Close())
	return errors.Join(errs...)
}

func asKey(target any) (Key, error) {
	k, ok := target.(Key)
	if !ok || k == "" {
		return "", fmt.Errorf("unsupported target %T", target)
	}
	return k, nil
}

func decode(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}
	return v, nil
}
