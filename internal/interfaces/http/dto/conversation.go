package dto

import (
	"encoding/json"
	"time"

	"spec-forge-api/internal/domain/entity"
)

// ChatRequest 对话消息请求
type ChatRequest struct {
	Message string `json:"message" binding:"required,max=20000"`
}

// TurnResponse 对话轮次响应
type TurnResponse struct {
	ID         string          `json:"id"`
	OrderIndex int             `json:"order_index"`
	Role       string          `json:"role"`
	Kind       string          `json:"kind"`
	Content    string          `json:"content"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// TurnListResponse 对话轮次列表响应
type TurnListResponse struct {
	Turns []*TurnResponse `json:"turns"`
}

// ChatDoneEvent 对话流结束事件
type ChatDoneEvent struct {
	TurnID     string `json:"turn_id,omitempty"`
	Ready      bool   `json:"ready"`
	Status     string `json:"status"`
	ArtifactID string `json:"artifact_id,omitempty"`
}

// ToTurnResponse 转换为对话轮次响应
func ToTurnResponse(t *entity.ConversationTurn) *TurnResponse {
	if t == nil {
		return nil
	}
	resp := &TurnResponse{
		ID:         t.ID,
		OrderIndex: t.OrderIndex,
		Role:       string(t.Role),
		Kind:       string(t.Kind),
		Content:    t.Content,
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
	}
	if len(t.Metadata) > 0 {
		resp.Metadata = json.RawMessage(t.Metadata)
	}
	return resp
}

// ToTurnListResponse 转换为对话轮次列表响应
func ToTurnListResponse(turns []*entity.ConversationTurn) *TurnListResponse {
	out := make([]*TurnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, ToTurnResponse(t))
	}
	return &TurnListResponse{Turns: out}
}
