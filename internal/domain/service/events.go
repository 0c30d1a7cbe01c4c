package service

import (
	"context"
	"time"
)

// EventType 项目对外事件类型
type EventType string

const (
	EventResearchStarted   EventType = "research_started"
	EventResearchPhaseDone EventType = "research_phase_completed"
	EventResearchCompleted EventType = "research_completed"
	EventSpecReady         EventType = "spec_ready"
	EventSpecFailed        EventType = "spec_failed"
	EventProjectApproved   EventType = "project_approved"
	EventChangesRequested  EventType = "changes_requested"
	EventProjectArchived   EventType = "project_archived"
	EventVersionCreated    EventType = "version_created"
	EventDocumentDownload  EventType = "document_downloaded"
)

// AllEventTypes 全部事件类型，通知消费者按此注册
var AllEventTypes = []EventType{
	EventResearchStarted, EventResearchPhaseDone, EventResearchCompleted,
	EventSpecReady, EventSpecFailed,
	EventProjectApproved, EventChangesRequested, EventProjectArchived,
	EventVersionCreated, EventDocumentDownload,
}

// DomainEvent 生命周期对外发布的事件，投递为 best-effort
type DomainEvent struct {
	Type      EventType      `json:"type"`
	ProjectID string         `json:"project_id"`
	OwnerID   string         `json:"owner_id"`
	Data      map[string]any `json:"data,omitempty"`
	At        time.Time      `json:"at"`
}

// EventPublisher 事件出口。
// 约定：失败只记录日志，不影响主流程。
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// GenerateJob 异步文档生成任务
type GenerateJob struct {
	JobID        string    `json:"job_id"`
	ProjectID    string    `json:"project_id"`
	OwnerID      string    `json:"owner_id"`
	Integrations []string  `json:"integrations,omitempty"`
	RequestedAt  time.Time `json:"requested_at"`
}

// JobQueue 投递生成任务
type JobQueue interface {
	EnqueueGenerate(ctx context.Context, job GenerateJob) (string, error)
}

// NoopEventPublisher 未启用通知时使用
type NoopEventPublisher struct{}

func (NoopEventPublisher) Publish(context.Context, DomainEvent) error { return nil }
