package prompt

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptChatV1             PromptID = "chat_v1"
	PromptResearchDomainV1   PromptID = "research_domain_v1"
	PromptResearchFeaturesV1 PromptID = "research_features_v1"
	PromptResearchTechV1     PromptID = "research_tech_v1"
	PromptResearchGapsV1     PromptID = "research_gaps_v1"
	PromptSpecGenerateV1     PromptID = "spec_generate_v1"
	PromptSpecFixV1          PromptID = "spec_fix_v1"
	PromptStructuredRepairV1 PromptID = "structured_repair_v1"
)

// 模板文件命名：<id>.system.txt / <id>.user.txt，任一可缺省
type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

var defaultRegistry = NewRegistry()

// Default 返回进程级共享的模板注册表
func Default() *Registry {
	return defaultRegistry
}

func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	system, err := readEmbeddedText(fmt.Sprintf("templates/%s.system.txt", id))
	if err != nil {
		return nil, err
	}
	user, err := readEmbeddedText(fmt.Sprintf("templates/%s.user.txt", id))
	if err != nil {
		return nil, err
	}
	if system == "" && user == "" {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}

	msgs := make([]schema.MessagesTemplate, 0, 2)
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	if user != "" {
		msgs = append(msgs, schema.UserMessage(user))
	}
	tpl := einoprompt.FromMessages(schema.FString, msgs...)
	r.cache[id] = tpl
	return tpl, nil
}

// Format 渲染模板为消息列表
func (r *Registry) Format(ctx context.Context, id PromptID, vars map[string]any) ([]*schema.Message, error) {
	tpl, err := r.ChatTemplate(id)
	if err != nil {
		return nil, err
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("format prompt %s: %w", id, err)
	}
	return msgs, nil
}

// readEmbeddedText 文件不存在时返回空字符串
func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
