package lifecycle

import (
	"strings"

	"spec-forge-api/internal/domain/entity"
)

// DefaultReadyMarker 助手判定上下文充分时输出的标记
const DefaultReadyMarker = "[READY_FOR_RESEARCH]"

// ReadinessPredicate 判断最近一轮助手回复是否表示可以开始调研
type ReadinessPredicate interface {
	IsReadyForResearch(latestAssistantTurn *entity.ConversationTurn) bool
}

// ReadinessFunc 函数适配器
type ReadinessFunc func(turn *entity.ConversationTurn) bool

func (f ReadinessFunc) IsReadyForResearch(turn *entity.ConversationTurn) bool {
	return f(turn)
}

// MarkerPredicate 在助手回复中查找文本标记，大小写不敏感。
// 文本匹配较脆弱，后续可以换成结构化的工具调用结果。
type MarkerPredicate struct {
	Marker string
}

func NewMarkerPredicate(marker string) MarkerPredicate {
	if strings.TrimSpace(marker) == "" {
		marker = DefaultReadyMarker
	}
	return MarkerPredicate{Marker: strings.TrimSpace(marker)}
}

func (p MarkerPredicate) IsReadyForResearch(turn *entity.ConversationTurn) bool {
	if turn == nil || turn.Role != entity.RoleAssistant {
		return false
	}
	return strings.Contains(strings.ToLower(turn.Content), strings.ToLower(p.Marker))
}

// Strip 去掉回复中的标记，用于展示
func (p MarkerPredicate) Strip(content string) string {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(p.Marker))
	if idx < 0 {
		return content
	}
	return strings.TrimSpace(content[:idx] + content[idx+len(p.Marker):])
}
