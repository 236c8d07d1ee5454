package services

import (
	"context"
	"fmt"

	"github.com/nexconsult/goc-sync/internal/browser"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Container holds all service dependencies
type Container struct {
	config      *config.Config
	logger      *logrus.Logger
	redisClient *redis.Client
	Store       store.Store
	Cache       *CacheService
	Forms       *FormSource
	SyncService SyncServiceInterface
}

// NewContainer creates a new service container
func NewContainer(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	container := &Container{
		config: cfg,
		logger: logger,
	}

	// Initialize Redis client
	if err := container.initRedis(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	// Initialize store
	if err := container.initStore(ctx); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	container.initServices()
	return container, nil
}

// initRedis initializes Redis client
func (c *Container) initRedis(ctx context.Context) error {
	c.redisClient = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", c.config.Redis.Host, c.config.Redis.Port),
		Password:     c.config.Redis.Password,
		DB:           c.config.Redis.DB,
		PoolSize:     c.config.Redis.PoolSize,
		DialTimeout:  c.config.Redis.DialTimeout,
		ReadTimeout:  c.config.Redis.ReadTimeout,
		WriteTimeout: c.config.Redis.WriteTimeout,
	})

	// Test Redis connection
	if err := c.redisClient.Ping(ctx).Err(); err != nil {
		c.logger.WithError(err).Warn("Redis connection failed, running with in-memory cache and locks")
		_ = c.redisClient.Close()
		c.redisClient = nil
	} else {
		c.logger.Info("Redis connection established")
	}

	return nil
}

// initStore opens PostgreSQL when a URL is configured, else keeps state in memory
func (c *Container) initStore(ctx context.Context) error {
	if c.config.Database.URL == "" {
		c.logger.Warn("DATABASE_URL not set, using in-memory store")
		c.Store = store.NewMemory()
		return nil
	}

	pool, err := store.NewPool(ctx, c.config.Database)
	if err != nil {
		return err
	}
	pg, err := store.NewPostgres(ctx, pool, c.logger)
	if err != nil {
		pool.Close()
		return err
	}
	if c.config.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return err
		}
	}
	c.Store = pg
	c.logger.Info("PostgreSQL connection established")
	return nil
}

// initServices initializes all services
func (c *Container) initServices() {
	c.Cache = NewCacheService(c.redisClient, c.config.Redis.CacheTTL, c.logger)
	c.Forms = NewFormSource(c.config.Forms, c.logger)
	launcher := browser.NewChromeLauncher(c.config.Browser, c.logger)
	c.SyncService = NewSyncService(c.config, c.Store, c.Cache, c.Cache, c.Forms, launcher, nil, c.logger)
}

// Close closes all service connections
func (c *Container) Close() error {
	var errors []error

	// Close Redis connection
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	if c.Store != nil {
		c.Store.Close()
	}

	// Return combined errors if any
	if len(errors) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errors)
	}

	return nil
}

// Health checks the health of all services
func (c *Container) Health(ctx context.Context) map[string]interface{} {
	health := c.Cache.Health()

	if err := c.Store.Ping(ctx); err != nil {
		health["database"] = map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
	} else {
		health["database"] = map[string]interface{}{
			"status": "healthy",
			"driver": c.storeDriver(),
		}
	}

	return health
}

// Ready reports whether the store answers
func (c *Container) Ready(ctx context.Context) error {
	return c.Store.Ping(ctx)
}

func (c *Container) storeDriver() string {
	if _, ok := c.Store.(*store.Memory); ok {
		return "memory"
	}
	return "postgres"
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.redisClient
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logrus.Logger {
	return c.logger
}
