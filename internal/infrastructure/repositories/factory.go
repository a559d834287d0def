package repositories

import (
	"context"

	"vroom/internal/core/ports"
	"vroom/internal/infrastructure/repositories/memory"
	redisrepo "vroom/internal/infrastructure/repositories/redis"
	"vroom/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory creates the room registry, with Redis backing when configured and a
// fallback to in-process memory.
type Factory struct {
	useRedis    bool
	retainEmpty bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	f := &Factory{
		useRedis:    cfg.Redis.Enabled,
		retainEmpty: cfg.Rooms.RetainEmpty,
		logger:      logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory registry", "error", err)
			f.useRedis = false
		} else {
			f.redisClient = client
			logger.Info("using Redis room registry")
		}
	}

	if !f.useRedis {
		logger.Info("using memory room registry")
	}

	return f, nil
}

// CreateRoomRegistry returns the configured registry implementation.
func (f *Factory) CreateRoomRegistry() ports.RoomRegistry {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRoomRegistry(f.redisClient)
	}
	return memory.NewRoomRegistry(f.retainEmpty)
}

// Close closes the Redis connection if one is open.
func (f *Factory) Close() error {
	if f.redisClient != nil {
		return f.redisClient.Close()
	}
	return nil
}

// HealthCheck verifies the backing store is reachable.
func (f *Factory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
