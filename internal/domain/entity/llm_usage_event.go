// Package entity 定义领域实体
package entity

import "time"

type LLMUsageEvent struct {
	ID               string    `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OwnerID          string    `json:"owner_id" gorm:"type:varchar(64);index:idx_usage_owner_created;not null"`
	ProjectID        string    `json:"project_id,omitempty" gorm:"type:varchar(64);index"`
	Workflow         string    `json:"workflow" gorm:"type:varchar(64);not null"`
	Provider         string    `json:"provider" gorm:"type:varchar(32);not null"`
	Model            string    `json:"model" gorm:"type:varchar(64);not null"`
	TokensPrompt     int       `json:"tokens_prompt" gorm:"not null;default:0"`
	TokensCompletion int       `json:"tokens_completion" gorm:"not null;default:0"`
	CostUSD          float64   `json:"cost_usd" gorm:"type:numeric(12,6);not null;default:0"`
	DurationMs       int       `json:"duration_ms" gorm:"not null;default:0"`
	Success          bool      `json:"success" gorm:"not null;default:true"`
	ErrorMessage     string    `json:"error_message,omitempty" gorm:"type:text"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime;index:idx_usage_owner_created"`
}

func (LLMUsageEvent) TableName() string {
	return "llm_usage_events"
}

// TotalTokens 本次调用消耗的 token 总数
func (e *LLMUsageEvent) TotalTokens() int {
	return e.TokensPrompt + e.TokensCompletion
}
