// Package messaging 提供基于 Redis Streams 的事件与任务队列
package messaging

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"spec-forge-api/pkg/logger"
)

// Stream 流定义
type Stream string

const (
	// StreamSpecEvents 项目生命周期事件
	StreamSpecEvents Stream = "stream:spec:events"
	// StreamSpecGenerate 异步文档生成任务
	StreamSpecGenerate Stream = "stream:spec:generate"
)

// DLQStream 超过重试上限或返回 ErrPermanent 的消息转入此流
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 不含前缀的消费者组名，实际组名为 <prefix>:<group>
type ConsumerGroup string

const (
	ConsumerGroupGenerateWorker ConsumerGroup = "cg-spec-generate"
	ConsumerGroupNotifier       ConsumerGroup = "cg-spec-notifier"
)

// MessageTypeGenerate 生成任务消息类型；事件消息的类型即 service.EventType
const MessageTypeGenerate = "spec_generate"

const (
	metaRequestID = "request_id"
	metaTraceID   = "trace_id"
)

// Message 写入 stream 的 data 字段；Metadata 同时承载 W3C traceparent
type Message struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	OwnerID   string            `json:"owner_id"`
	ProjectID string            `json:"project_id"`
	Payload   json.RawMessage   `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"created_at"`
}

func NewMessage(id, msgType, ownerID, projectID string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		Type:      msgType,
		OwnerID:   ownerID,
		ProjectID: projectID,
		Payload:   raw,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) SetMetadata(key, value string) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	m.Metadata[key] = value
}

func (m *Message) GetMetadata(key string) string {
	return m.Metadata[key]
}

func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// InjectContext 记录发布方的请求 ID 与链路，worker 侧的处理 span 因此挂在原请求下
func (m *Message) InjectContext(ctx context.Context) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]string)
	}
	if id := logger.Value(ctx, logger.RequestIDKey); id != "" {
		m.Metadata[metaRequestID] = id
	}
	if id := logger.Value(ctx, logger.TraceIDKey); id != "" {
		m.Metadata[metaTraceID] = id
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(m.Metadata))
}

// ExtractContext InjectContext 的逆操作
func (m *Message) ExtractContext(ctx context.Context) context.Context {
	if len(m.Metadata) == 0 {
		return ctx
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(m.Metadata))
	if id := m.Metadata[metaRequestID]; id != "" {
		ctx = logger.WithContext(ctx, logger.RequestIDKey, id)
	}
	if id := m.Metadata[metaTraceID]; id != "" {
		ctx = logger.WithContext(ctx, logger.TraceIDKey, id)
	}
	return ctx
}

// BackoffConfig 消费失败后的重投间隔
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    time.Second,
		Max:        time.Minute,
		Multiplier: 2,
	}
}

// CalculateBackoff Initial * Multiplier^retryCount，不超过 Max
func (c BackoffConfig) CalculateBackoff(retryCount int) time.Duration {
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.Initial) * math.Pow(mult, float64(max(retryCount, 0)))
	if c.Max > 0 && d > float64(c.Max) {
		return c.Max
	}
	return time.Duration(d)
}
