package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"spec-forge-api/internal/application/research"
	"spec-forge-api/pkg/logger"
)

var cacheTracer = otel.Tracer("redis.cache")

const defaultProgressTTL = 24 * time.Hour

// kvStore ProgressCache 依赖的最小键值接口，*Client 实现它
type kvStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// ProgressLoader 缓存未命中时从持久化状态推导最近进度；返回 nil 表示没有进度
type ProgressLoader func(ctx context.Context) (*research.ProgressEvent, error)

// ProgressCache 每个项目最近一次调研进度的镜像，供断线重连的客户端读取
type ProgressCache struct {
	store kvStore
	ttl   time.Duration
	group singleflight.Group
}

// NewProgressCache 创建进度缓存
func NewProgressCache(client *Client, ttl time.Duration) *ProgressCache {
	return newProgressCache(client, ttl)
}

func newProgressCache(store kvStore, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = defaultProgressTTL
	}
	return &ProgressCache{store: store, ttl: ttl}
}

// ProgressKey 进度缓存键
func ProgressKey(projectID string) string {
	return fmt.Sprintf("progress:%s", projectID)
}

// Emit 实现 research.ProgressSink；写入失败只记录日志，不影响调研流程
func (c *ProgressCache) Emit(ctx context.Context, event research.ProgressEvent) {
	ctx = context.WithoutCancel(ctx)
	if err := c.Put(ctx, event); err != nil {
		logger.Warn(ctx, "failed to mirror research progress",
			"project_id", event.ProjectID,
			"phase", event.PhaseNumber,
			"error", err.Error(),
		)
	}
}

// Put 覆盖项目的最近进度
func (c *ProgressCache) Put(ctx context.Context, event research.ProgressEvent) error {
	key := ProgressKey(event.ProjectID)
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", c.ttl.Milliseconds()),
		))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Latest Read-Through 读取最近进度，并发未命中通过 singleflight 合并
func (c *ProgressCache) Latest(ctx context.Context, projectID string, loader ProgressLoader) (*research.ProgressEvent, error) {
	key := ProgressKey(projectID)
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if event, err := c.get(ctx, key); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return event, nil
	} else if !IsNil(err) {
		// 缓存不可用时退回到 loader
		span.RecordError(err)
		logger.Warn(ctx, "progress cache read failed", "project_id", projectID, "error", err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if loader == nil {
		return nil, nil
	}

	result, err, shared := c.group.Do(key, func() (any, error) {
		event, err := loader(ctx)
		if err != nil || event == nil {
			return event, err
		}
		if err := c.Put(ctx, *event); err != nil {
			logger.Warn(ctx, "failed to backfill progress cache", "project_id", projectID, "error", err.Error())
		}
		return event, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	event, _ := result.(*research.ProgressEvent)
	return event, nil
}

func (c *ProgressCache) get(ctx context.Context, key string) (*research.ProgressEvent, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var event research.ProgressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}
	return &event, nil
}
