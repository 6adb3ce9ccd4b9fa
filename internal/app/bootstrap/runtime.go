package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	appconfig "github.com/doctoruncle/clinic-assistant/internal/config"
	"github.com/doctoruncle/clinic-assistant/internal/observability/metrics"
	"github.com/doctoruncle/clinic-assistant/internal/session"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/redis/go-redis/v9"
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

// SessionBackend is the store and locker pair a Manager runs on.
type SessionBackend struct {
	Store  session.Store
	Locker session.Locker
	// Close releases the backend's connections. Never nil.
	Close func() error
}

// BuildSessionBackend picks the memory or redis backend per SESSION_BACKEND.
// An unreachable redis is an error; there is no fallback to memory.
func BuildSessionBackend(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*SessionBackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.SessionBackend {
	case appconfig.BackendMemory, "":
		logger.Info("chat sessions stored in memory", "ttl", cfg.SessionTTL.String())
		return &SessionBackend{
			Store:  session.NewMemoryStore(cfg.SessionTTL),
			Locker: session.NewMemoryLocker(),
			Close:  func() error { return nil },
		}, nil
	case appconfig.BackendRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis session backend unavailable at %s", cfg.RedisAddr)
		}
		logger.Info("chat sessions stored in redis", "addr", cfg.RedisAddr, "ttl", cfg.SessionTTL.String())
		return &SessionBackend{
			Store:  session.NewRedisStore(client, cfg.SessionTTL),
			Locker: session.NewRedisLocker(client, session.LockTTLFor(cfg.ReplyDelay)),
			Close:  client.Close,
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

// BuildManager wires the conversation engine and session lifecycle.
func BuildManager(cfg *appconfig.Config, backend *SessionBackend, chatMetrics *metrics.ChatMetrics, logger *logging.Logger) (*session.Manager, error) {
	if cfg == nil || backend == nil {
		return nil, fmt.Errorf("bootstrap: config and session backend are required")
	}
	personalizer, err := chatbot.ParsePersonalizer(cfg.Personalization)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return session.NewManager(session.Config{
		Engine:     chatbot.NewEngine(chatbot.WithPersonalizer(personalizer)),
		Store:      backend.Store,
		Locker:     backend.Locker,
		Metrics:    chatMetrics,
		Logger:     logger,
		ReplyDelay: cfg.ReplyDelay,
	}), nil
}
