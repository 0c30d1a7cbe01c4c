package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"spec-forge-api/internal/domain/service"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	msg.InjectContext(ctx)
	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// EventPublisher 把生命周期事件写入 stream:spec:events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher 创建事件发布器
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Publish 实现 service.EventPublisher
func (e *EventPublisher) Publish(ctx context.Context, event service.DomainEvent) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	msg, err := NewMessage(uuid.NewString(), string(event.Type), event.OwnerID, event.ProjectID, event)
	if err != nil {
		return err
	}
	_, err = e.producer.Publish(ctx, StreamSpecEvents, msg)
	return err
}

// JobQueue 把生成任务写入 stream:spec:generate
type JobQueue struct {
	producer *Producer
}

// NewJobQueue 创建任务队列
func NewJobQueue(producer *Producer) *JobQueue {
	return &JobQueue{producer: producer}
}

// EnqueueGenerate 实现 service.JobQueue，返回任务 ID
func (q *JobQueue) EnqueueGenerate(ctx context.Context, job service.GenerateJob) (string, error) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now()
	}
	msg, err := NewMessage(job.JobID, MessageTypeGenerate, job.OwnerID, job.ProjectID, job)
	if err != nil {
		return "", err
	}
	if len(job.Integrations) > 0 {
		msg.SetMetadata("integrations", strings.Join(job.Integrations, ","))
	}
	// 同一项目同一时刻只应有一个有效任务，消费端按此键去重
	msg.SetMetadata("idempotency_key", fmt.Sprintf("%s:%d", job.ProjectID, job.RequestedAt.Unix()))

	if _, err := q.producer.Publish(ctx, StreamSpecGenerate, msg); err != nil {
		return "", err
	}
	return job.JobID, nil
}
