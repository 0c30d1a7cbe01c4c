package redis

import (
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"spec-forge-api/internal/config"
)

func TestOptionsDefaults(t *testing.T) {
	opts := Options(&config.RedisConfig{Host: "cache", Port: 6379, DB: 2})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, defaultPoolSize, opts.PoolSize)
	assert.Equal(t, pingTimeout, opts.DialTimeout)

	custom := Options(&config.RedisConfig{Host: "cache", Port: 6380, PoolSize: 50, DialTimeout: time.Second})
	assert.Equal(t, 50, custom.PoolSize)
	assert.Equal(t, time.Second, custom.DialTimeout)
}

func TestKeyspace(t *testing.T) {
	assert.Equal(t, "progress", keyspace(ProgressKey("p-1")))
	assert.Equal(t, "plain", keyspace("plain"))
	assert.Equal(t, ":x", keyspace(":x"))
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(goredis.Nil))
	assert.False(t, IsNil(nil))
}
