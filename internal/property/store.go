package property

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Lookup resolves a property's configuration.
type Lookup interface {
	Get(ctx context.Context, propertyID string) (*Config, error)
}

// Resolver finds the property that owns an inbound channel address: the
// WhatsApp number for "whatsapp" and the notification mailbox for "email".
type Resolver interface {
	ResolveChannel(ctx context.Context, channel, address string) (*Config, error)
}

// NormalizeAddress lowercases an address and strips the Twilio "whatsapp:"
// prefix so webhook values compare equal to configured ones.
func NormalizeAddress(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	return strings.TrimPrefix(address, "whatsapp:")
}

func channelAddress(cfg *Config, channel string) string {
	switch channel {
	case "whatsapp":
		return NormalizeAddress(cfg.WhatsAppNumberID)
	case "email":
		return NormalizeAddress(cfg.NotificationEmail)
	default:
		return ""
	}
}

// RedisStore keeps property configs as JSON in Redis.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis-backed property store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) key(propertyID string) string {
	return fmt.Sprintf("property:config:%s", propertyID)
}

func (s *RedisStore) channelKey(channel, address string) string {
	return fmt.Sprintf("property:channel:%s:%s", channel, address)
}

// Get retrieves a property config. Missing keys return ErrPropertyNotFound.
func (s *RedisStore) Get(ctx context.Context, propertyID string) (*Config, error) {
	data, err := s.redis.Get(ctx, s.key(propertyID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("property: get config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("property: unmarshal config: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = propertyID
	}
	cfg.normalize()
	return &cfg, nil
}

// Set saves a property config.
func (s *RedisStore) Set(ctx context.Context, cfg *Config) error {
	if cfg == nil || cfg.ID == "" {
		return errors.New("property: config id required")
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("property: marshal config: %w", err)
	}
	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.key(cfg.ID), data, 0)
	for _, channel := range []string{"whatsapp", "email"} {
		if address := channelAddress(cfg, channel); address != "" {
			pipe.Set(ctx, s.channelKey(channel, address), cfg.ID, 0)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("property: set config: %w", err)
	}
	return nil
}

// ResolveChannel implements Resolver using the index written by Set.
func (s *RedisStore) ResolveChannel(ctx context.Context, channel, address string) (*Config, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return nil, ErrPropertyNotFound
	}
	id, err := s.redis.Get(ctx, s.channelKey(channel, address)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPropertyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("property: resolve %s address: %w", channel, err)
	}
	return s.Get(ctx, id)
}

// StaticStore serves property configs held in memory.
type StaticStore struct {
	mu      sync.RWMutex
	configs map[string]*Config
}

// NewStaticStore builds a store from the given configs.
func NewStaticStore(configs ...*Config) *StaticStore {
	s := &StaticStore{configs: make(map[string]*Config, len(configs))}
	for _, cfg := range configs {
		s.Put(cfg)
	}
	return s
}

type propertiesFile struct {
	Properties []*Config `yaml:"properties"`
}

// LoadStaticStore reads a YAML file with a top-level "properties" list.
func LoadStaticStore(path string) (*StaticStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("property: read %s: %w", path, err)
	}
	var file propertiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("property: parse %s: %w", path, err)
	}
	for i, cfg := range file.Properties {
		if cfg == nil || cfg.ID == "" {
			return nil, fmt.Errorf("property: entry %d in %s has no id", i, path)
		}
	}
	return NewStaticStore(file.Properties...), nil
}

// Put adds or replaces a config.
func (s *StaticStore) Put(cfg *Config) {
	if cfg == nil {
		return
	}
	copied := *cfg
	copied.normalize()
	s.mu.Lock()
	s.configs[cfg.ID] = &copied
	s.mu.Unlock()
}

// Get returns a copy of the stored config.
func (s *StaticStore) Get(_ context.Context, propertyID string) (*Config, error) {
	s.mu.RLock()
	cfg, ok := s.configs[propertyID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrPropertyNotFound
	}
	copied := *cfg
	return &copied, nil
}

// ResolveChannel implements Resolver by scanning the configs.
func (s *StaticStore) ResolveChannel(_ context.Context, channel, address string) (*Config, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return nil, ErrPropertyNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cfg := range s.configs {
		if channelAddress(cfg, channel) == address {
			copied := *cfg
			return &copied, nil
		}
	}
	return nil, ErrPropertyNotFound
}

// Chain consults each lookup in order, skipping ErrPropertyNotFound.
type Chain []Lookup

// Get implements Lookup.
func (c Chain) Get(ctx context.Context, propertyID string) (*Config, error) {
	for _, lookup := range c {
		if lookup == nil {
			continue
		}
		cfg, err := lookup.Get(ctx, propertyID)
		if errors.Is(err, ErrPropertyNotFound) {
			continue
		}
		return cfg, err
	}
	return nil, ErrPropertyNotFound
}

// ResolveChannel implements Resolver over the lookups that support it.
func (c Chain) ResolveChannel(ctx context.Context, channel, address string) (*Config, error) {
	for _, lookup := range c {
		resolver, ok := lookup.(Resolver)
		if !ok {
			continue
		}
		cfg, err := resolver.ResolveChannel(ctx, channel, address)
		if errors.Is(err, ErrPropertyNotFound) {
			continue
		}
		return cfg, err
	}
	return nil, ErrPropertyNotFound
}
