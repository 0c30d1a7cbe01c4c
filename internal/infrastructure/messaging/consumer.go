package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// MessageHandler 返回错误的消息保留在 PEL 中，按退避间隔重投
type MessageHandler func(ctx context.Context, msg *Message) error

// ErrPermanent 处理器返回包装了它的错误时，消息直接进入死信队列，不再重试
var ErrPermanent = errors.New("permanent message failure")

const (
	readBatch    = 10
	pendingBatch = 20
	dlqInterval  = time.Minute
)

// Consumer 单个 stream 上的消费者组成员
type Consumer struct {
	client        *redis.Client
	stream        Stream
	group         ConsumerGroup
	consumerName  string
	blockTimeout  time.Duration
	claimInterval time.Duration
	reclaimIdle   time.Duration
	retryLimit    int
	backoff       BackoffConfig

	handlers map[string]MessageHandler
	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// ConsumerConfig Group 为完整组名（已带前缀）
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = 30 * time.Second
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = 3
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}

	return &Consumer{
		client:        client,
		stream:        cfg.Stream,
		group:         cfg.Group,
		consumerName:  cfg.ConsumerName,
		blockTimeout:  cfg.BlockTimeout,
		claimInterval: cfg.ClaimInterval,
		// 其他实例崩溃后遗留的消息，空闲超过最长退避的两倍才接管
		reclaimIdle: max(5*time.Minute, cfg.Backoff.Max*2),
		retryLimit:  cfg.RetryLimit,
		backoff:     cfg.Backoff,
		handlers:    make(map[string]MessageHandler),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// RegisterHandler 按消息类型注册；没有处理器的类型直接 ack
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[msgType] = handler
}

// Start 创建消费者组（已存在时忽略）并启动消费循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("consumer %s already running", c.consumerName)
	}
	c.running = true
	c.mu.Unlock()

	err := c.client.XGroupCreateMkStream(ctx, string(c.stream), string(c.group), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}

	go c.run(ctx)
	return nil
}

// Stop 停止消费者，并等待正在处理的消息结束
func (c *Consumer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	close(c.stopCh)
	c.running = false
	c.mu.Unlock()
	<-c.doneCh
}

func (c *Consumer) run(ctx context.Context) {
	defer close(c.doneCh)

	log := logger.FromContext(ctx).With("stream", c.stream, "group", c.group, "consumer", c.consumerName)
	log.Info("consumer started")

	// Redis 不可用时逐步拉长重试间隔，读成功后复位
	readRetry := backoff.NewExponentialBackOff()
	readRetry.MaxInterval = 30 * time.Second

	lastClaim := time.Now().Add(-c.claimInterval)
	for {
		select {
		case <-ctx.Done():
			log.Info("consumer stopped due to context cancellation")
			return
		case <-c.stopCh:
			log.Info("consumer stopped")
			return
		default:
		}

		c.retryDue(ctx)
		if time.Since(lastClaim) >= c.claimInterval {
			c.reclaimStale(ctx)
			c.recordLag(ctx)
			lastClaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    string(c.group),
			Consumer: c.consumerName,
			Streams:  []string{string(c.stream), ">"},
			Count:    readBatch,
			Block:    c.blockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			wait := readRetry.NextBackOff()
			log.Error("failed to read from stream", "error", err, "retry_in", wait.String())
			c.sleep(ctx, wait)
			continue
		}
		readRetry.Reset()

		for _, s := range streams {
			for _, xmsg := range s.Messages {
				c.processMessage(ctx, xmsg)
			}
		}
	}
}

// sleep 可被 Stop 或 ctx 打断
func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	case <-c.stopCh:
	}
}

func (c *Consumer) processMessage(ctx context.Context, xmsg redis.XMessage) {
	msg, err := decodeXMessage(xmsg)
	if err != nil {
		logger.FromContext(ctx).Error("invalid message format", "error", err, "message_id", xmsg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "invalid").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	ctx, span := tracer.Start(messageContext(ctx, msg), "consumer.processMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("stream", string(c.stream)),
			attribute.String("stream.message_id", xmsg.ID),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
			attribute.String("spec.project_id", msg.ProjectID),
		))
	defer span.End()
	log := logger.FromContext(ctx)

	c.mu.RLock()
	handler, ok := c.handlers[msg.Type]
	c.mu.RUnlock()
	if !ok {
		log.Warn("no handler for message type", "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "skipped").Inc()
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		span.RecordError(err)
		log.Error("handler failed", "error", err, "message_id", msg.ID, "type", msg.Type)
		metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "failed").Inc()
		c.handleFailure(ctx, xmsg.ID, msg, err)
		return
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "success").Inc()
	c.ack(ctx, xmsg.ID)
}

// messageContext 恢复发布方的链路与请求 ID，并注入 owner_id/project_id 日志字段
func messageContext(ctx context.Context, msg *Message) context.Context {
	ctx = msg.ExtractContext(ctx)
	if msg.OwnerID != "" {
		ctx = logger.WithContext(ctx, logger.OwnerIDKey, msg.OwnerID)
	}
	if msg.ProjectID != "" {
		ctx = logger.WithContext(ctx, logger.ProjectIDKey, msg.ProjectID)
	}
	return ctx
}

func decodeXMessage(xmsg redis.XMessage) (*Message, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no data field", xmsg.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.client.XAck(ctx, string(c.stream), string(c.group), id).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to ack message", "error", err, "message_id", id)
	}
}

// handleFailure 永久失败或达到重试上限时转入死信队列，否则留在 PEL 等待 retryDue
func (c *Consumer) handleFailure(ctx context.Context, streamID string, msg *Message, err error) {
	log := logger.FromContext(ctx)

	if errors.Is(err, ErrPermanent) {
		log.Warn("message moved to DLQ on permanent failure", "message_id", msg.ID)
		c.deadLetter(ctx, streamID, msg, err, 0)
		return
	}

	deliveries := c.deliveryCount(ctx, streamID)
	if deliveries >= c.retryLimit {
		log.Warn("message moved to DLQ after max retries", "message_id", msg.ID, "deliveries", deliveries)
		c.deadLetter(ctx, streamID, msg, err, deliveries)
		return
	}
	log.Info("message left pending for retry",
		"message_id", msg.ID,
		"deliveries", deliveries,
		"next_after", c.backoff.CalculateBackoff(deliveries).String(),
	)
}

// deliveryCount XPENDING 中记录的投递次数
func (c *Consumer) deliveryCount(ctx context.Context, streamID string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: string(c.stream),
		Group:  string(c.group),
		Start:  streamID,
		End:    streamID,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// DeadLetter 死信条目，运维按 project_id 检索后可手动重投 Message
type DeadLetter struct {
	OriginalStream string   `json:"original_stream"`
	StreamID       string   `json:"stream_id"`
	Message        *Message `json:"message"`
	Error          string   `json:"error"`
	Deliveries     int      `json:"deliveries"`
	FailedAt       int64    `json:"failed_at"`
}

// deadLetter 写入死信流后 ack 原消息；写入失败时保留在 PEL
func (c *Consumer) deadLetter(ctx context.Context, streamID string, msg *Message, cause error, deliveries int) {
	entry := DeadLetter{
		OriginalStream: string(c.stream),
		StreamID:       streamID,
		Message:        msg,
		Error:          cause.Error(),
		Deliveries:     deliveries,
		FailedAt:       time.Now().Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		logger.FromContext(ctx).Error("failed to encode dead letter", "error", err, "message_id", msg.ID)
		return
	}
	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.stream.DLQStream(),
		Values: map[string]any{
			"data":       string(data),
			"type":       msg.Type,
			"project_id": msg.ProjectID,
		},
	}).Err(); err != nil {
		logger.FromContext(ctx).Error("failed to write DLQ", "error", err, "message_id", msg.ID)
		return
	}
	metrics.RedisStreamProcessed.WithLabelValues(string(c.stream), "dead_letter").Inc()
	c.ack(ctx, streamID)
}

// pending 查询 PEL；consumer 为空时查询整个组
func (c *Consumer) pending(ctx context.Context, consumer string) []redis.XPendingExt {
	entries, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Start:    "-",
		End:      "+",
		Count:    pendingBatch,
		Consumer: consumer,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Error("failed to query pending messages", "error", err)
		}
		return nil
	}
	return entries
}

// claim 认领后逐条交给 fn；XCLAIM 会增加投递次数
func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration, fn func(redis.XMessage)) {
	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   string(c.stream),
		Group:    string(c.group),
		Consumer: c.consumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.FromContext(ctx).Error("failed to claim pending message", "error", err, "message_id", id)
		return
	}
	for _, xmsg := range claimed {
		fn(xmsg)
	}
}

// expire 超出重试上限的遗留消息直接转入死信
func (c *Consumer) expire(ctx context.Context) func(redis.XMessage) {
	return func(xmsg redis.XMessage) {
		msg, err := decodeXMessage(xmsg)
		if err != nil {
			c.ack(ctx, xmsg.ID)
			return
		}
		c.deadLetter(ctx, xmsg.ID, msg, errors.New("message exceeded max retries"), c.retryLimit)
	}
}

func (c *Consumer) redeliver(ctx context.Context) func(redis.XMessage) {
	return func(xmsg redis.XMessage) {
		c.processMessage(ctx, xmsg)
	}
}

// retryDue 重投本消费者名下退避时间已到的消息
func (c *Consumer) retryDue(ctx context.Context) {
	for _, p := range c.pending(ctx, c.consumerName) {
		deliveries := int(p.RetryCount)
		if deliveries >= c.retryLimit {
			c.claim(ctx, p.ID, 0, c.expire(ctx))
			continue
		}
		wait := c.backoff.CalculateBackoff(deliveries)
		if p.Idle < wait {
			continue
		}
		c.claim(ctx, p.ID, wait, c.redeliver(ctx))
	}
}

// reclaimStale 接管其他消费者长时间未处理的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.consumerName || p.Idle < c.reclaimIdle {
			continue
		}
		if int(p.RetryCount) >= c.retryLimit {
			c.claim(ctx, p.ID, c.reclaimIdle, c.expire(ctx))
			continue
		}
		c.claim(ctx, p.ID, c.reclaimIdle, c.redeliver(ctx))
	}
}

func (c *Consumer) recordLag(ctx context.Context) {
	groups, err := c.client.XInfoGroups(ctx, string(c.stream)).Result()
	if err != nil {
		return
	}
	for _, g := range groups {
		if g.Name == string(c.group) {
			metrics.RedisStreamLag.WithLabelValues(string(c.stream), g.Name).Set(float64(g.Lag))
		}
	}
}

// MonitorDLQ 每分钟上报死信流长度，超过阈值时告警
func (c *Consumer) MonitorDLQ(ctx context.Context, alertThreshold int64) {
	dlq := c.stream.DLQStream()
	log := logger.FromContext(ctx).With("stream", dlq)
	ticker := time.NewTicker(dlqInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			n, err := c.client.XLen(ctx, dlq).Result()
			if err != nil {
				continue
			}
			metrics.RedisDLQLength.WithLabelValues(dlq).Set(float64(n))
			if n > alertThreshold {
				log.Warn("DLQ has pending messages", "count", n)
			}
		}
	}
}
