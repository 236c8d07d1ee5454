package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containerConfig(t *testing.T, host string, port int) *config.Config {
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{
		Host:         host,
		Port:         port,
		PoolSize:     2,
		DialTimeout:  time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		CacheTTL:     time.Hour,
	}
	return cfg
}

func TestContainerWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), containerConfig(t, mr.Host(), port), logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.GetRedisClient())
	health := c.Health(context.Background())
	assert.Equal(t, "healthy", health["redis"].(map[string]interface{})["status"])
	db := health["database"].(map[string]interface{})
	assert.Equal(t, "memory", db["driver"])
	assert.NoError(t, c.Ready(context.Background()))
}

func TestContainerWithoutRedis(t *testing.T) {
	c, err := NewContainer(context.Background(), containerConfig(t, "127.0.0.1", 1), logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.GetRedisClient())
	assert.Equal(t, "disabled", c.Health(context.Background())["redis"].(map[string]interface{})["status"])
}
