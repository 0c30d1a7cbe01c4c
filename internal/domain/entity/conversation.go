// Package entity 定义领域实体
package entity

import (
	"time"

	"gorm.io/datatypes"
)

// TurnKind 对话轮次的用途
type TurnKind string

const (
	TurnKindChat              TurnKind = "chat"
	TurnKindFeedback          TurnKind = "feedback"
	TurnKindPhasePresentation TurnKind = "phase_presentation"
	TurnKindChangeRequest     TurnKind = "change_request"
)

// ConversationTurn 对话日志中的一轮，写入后不可修改
type ConversationTurn struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ProjectID  string         `json:"project_id" gorm:"type:uuid;not null;uniqueIndex:idx_turn_project_order"`
	OrderIndex int            `json:"order_index" gorm:"not null;uniqueIndex:idx_turn_project_order"`
	Role       Role           `json:"role" gorm:"type:varchar(16);not null"`
	Kind       TurnKind       `json:"kind" gorm:"type:varchar(32);not null;default:'chat'"`
	Content    string         `json:"content" gorm:"type:text;not null"`
	Metadata   datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}

func (ConversationTurn) TableName() string {
	return "conversation_turns"
}

// NewConversationTurn 创建对话轮次，OrderIndex 由仓储在追加时分配
func NewConversationTurn(projectID string, role Role, kind TurnKind, content string, metadata datatypes.JSON) *ConversationTurn {
	if kind == "" {
		kind = TurnKindChat
	}
	return &ConversationTurn{
		ProjectID: projectID,
		Role:      role,
		Kind:      kind,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
}

// UserTurns 过滤出用户轮次
func UserTurns(turns []*ConversationTurn) []*ConversationTurn {
	out := make([]*ConversationTurn, 0, len(turns))
	for _, t := range turns {
		if t.Role == RoleUser {
			out = append(out, t)
		}
	}
	return out
}
