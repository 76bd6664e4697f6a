package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/detailing-booking-widget/internal/config"
	"github.com/wolfman30/detailing-booking-widget/internal/session"
	"github.com/wolfman30/detailing-booking-widget/pkg/logging"
)

// BuildRedisClient returns a configured Redis client, or nil when the memory
// session store is selected. When verify is true, a ping must succeed.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) (*redis.Client, error) {
	if cfg == nil || cfg.SessionStore != "redis" || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
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
		return client, nil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("bootstrap: redis not available at %s: %w", cfg.RedisAddr, err)
	}
	logger.Info("redis session store connected", "addr", cfg.RedisAddr)
	return client, nil
}

// BuildSessionStore picks the Redis store when a client is available and the
// in-process store otherwise.
func BuildSessionStore(cfg *appconfig.Config, redisClient *redis.Client) session.Store {
	ttl := session.DefaultTTL
	if cfg != nil && cfg.SessionTTL > 0 {
		ttl = cfg.SessionTTL
	}
	if redisClient != nil {
		return session.NewRedisStore(redisClient, ttl)
	}
	return session.NewMemoryStore(ttl)
}
