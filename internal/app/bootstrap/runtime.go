package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/hotel-concierge-ai/internal/config"
	"github.com/wolfman30/hotel-concierge-ai/internal/property"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool opens the pool or returns nil when DATABASE_URL is unset.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, nil
}

// BuildPropertyLookup layers Redis over the optional properties file, so
// operators can override file entries at runtime.
func BuildPropertyLookup(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (property.Chain, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	var chain property.Chain
	if redisClient != nil {
		chain = append(chain, property.NewRedisStore(redisClient))
	}
	if path := strings.TrimSpace(cfg.PropertiesFile); path != "" {
		static, err := property.LoadStaticStore(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load properties file: %w", err)
		}
		chain = append(chain, static)
		logger.Info("property file loaded", "path", path)
	}
	if len(chain) == 0 {
		logger.Warn("no property source configured; every property lookup will miss")
		chain = append(chain, property.NewStaticStore())
	}
	return chain, nil
}
