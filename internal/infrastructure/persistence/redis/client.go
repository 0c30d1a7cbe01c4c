// Package redis 提供 Redis 客户端、调研进度缓存与限流实现
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/internal/config"
)

var tracer = otel.Tracer("redis")

const (
	defaultPoolSize = 10
	pingTimeout     = 5 * time.Second
)

// Client 进度镜像、限流与 Stream 消息共用的连接
type Client struct {
	rdb *redis.Client
}

// Options 由配置构造连接参数，未配置的池大小与超时取默认值
func Options(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = pingTimeout
	}
	return opts
}

// NewClient 连接并 PING 一次，失败时返回错误由调用方决定是否降级
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	opts := Options(cfg)
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", opts.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Redis Stream 生产者与消费者直接使用底层客户端
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck PING，并把连接池状态记到 span 上
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if stats := c.rdb.PoolStats(); stats != nil {
		span.SetAttributes(
			attribute.Int64("redis.pool.total", int64(stats.TotalConns)),
			attribute.Int64("redis.pool.idle", int64(stats.IdleConns)),
			attribute.Int64("redis.pool.timeouts", int64(stats.Timeouts)),
		)
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Get 未命中时返回 redis.Nil
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "redis.Get",
		trace.WithAttributes(attribute.String("redis.keyspace", keyspace(key))))
	defer span.End()

	result, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case IsNil(err):
		span.SetAttributes(attribute.Bool("redis.hit", false))
	case err != nil:
		span.RecordError(err)
	default:
		span.SetAttributes(attribute.Bool("redis.hit", true))
	}
	return result, err
}

func (c *Client) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.Set",
		trace.WithAttributes(
			attribute.String("redis.keyspace", keyspace(key)),
			attribute.Int64("redis.ttl_ms", expiration.Milliseconds()),
		))
	defer span.End()

	err := c.rdb.Set(ctx, key, value, expiration).Err()
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// IsNil 检查是否为 redis.Nil 错误
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// keyspace 键的第一段，如 progress:<id> 记为 progress，避免把项目 ID 写进 span
func keyspace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
