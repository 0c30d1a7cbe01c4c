package lifecycle

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/service"
	workflowport "spec-forge-api/internal/workflow/port"
	workflowprompt "spec-forge-api/internal/workflow/prompt"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// ChatOutcome 一轮对话结束后的结果
type ChatOutcome struct {
	AssistantTurn *entity.ConversationTurn
	Ready         bool
	Status        entity.ProjectStatus
	Artifact      *entity.ResearchArtifact
	Usage         workflowport.Usage
}

// ChatStream 助手回复的分片流；调用方必须调用 Close 才会落库助手回复
type ChatStream struct {
	reader  *schema.StreamReader[*schema.Message]
	buf     strings.Builder
	usage   workflowport.Usage
	finish  func(ctx context.Context, content string, usage workflowport.Usage) (*ChatOutcome, error)
	once    sync.Once
	outcome *ChatOutcome
	err     error
}

// Recv 返回下一段文本，流结束时返回 io.EOF
func (s *ChatStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if err != nil {
			return "", err
		}
		if msg == nil {
			continue
		}
		if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
			s.usage.PromptTokens = msg.ResponseMeta.Usage.PromptTokens
			s.usage.CompletionTokens = msg.ResponseMeta.Usage.CompletionTokens
		}
		if msg.Content == "" {
			continue
		}
		s.buf.WriteString(msg.Content)
		return msg.Content, nil
	}
}

// Close 读完剩余分片，落库助手回复并执行就绪判定；重复调用返回首次结果
func (s *ChatStream) Close(ctx context.Context) (*ChatOutcome, error) {
	s.once.Do(func() {
		defer s.reader.Close()
		for {
			if _, err := s.Recv(); err != nil {
				if !errors.Is(err, io.EOF) {
					s.err = err
					return
				}
				break
			}
		}
		s.outcome, s.err = s.finish(ctx, s.buf.String(), s.usage)
	})
	return s.outcome, s.err
}

// Chat 追加用户发言并流式返回助手回复
func (c *Controller) Chat(ctx context.Context, projectID, ownerID, text string) (*ChatStream, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("message is required")
	}
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.requireStatus(project, entity.ProjectStatusChatting, "chat"); err != nil {
		return nil, err
	}
	if err := c.checkQuota(ctx, ownerID); err != nil {
		return nil, err
	}

	if err := c.repos.Turns.Append(ctx, entity.NewConversationTurn(projectID, entity.RoleUser, entity.TurnKindChat, text, nil)); err != nil {
		return nil, err
	}
	turns, err := c.repos.Turns.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	system, err := c.prompts.Format(ctx, workflowprompt.PromptChatV1, map[string]any{
		"project_name":        project.Name,
		"project_description": project.Description,
		"ready_marker":        c.readyMarker(),
	})
	if err != nil {
		return nil, err
	}

	ctx = service.WithOwnerProject(ctx, ownerID, projectID)
	reader, err := c.chat.CompleteStreaming(ctx, &workflowport.CompletionRequest{
		Workflow: "chat",
		Tier:     c.cfg.Generation.ChatTier,
		Messages: append(system, historyMessages(turns, c.cfg.Generation.MaxTurns)...),
	})
	if err != nil {
		return nil, err
	}

	return &ChatStream{
		reader: reader,
		finish: func(ctx context.Context, content string, usage workflowport.Usage) (*ChatOutcome, error) {
			return c.finishChat(ctx, project, content, usage)
		},
	}, nil
}

func (c *Controller) finishChat(ctx context.Context, project *entity.Project, content string, usage workflowport.Usage) (*ChatOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.ErrProviderUnavailable.WithDetail("empty assistant reply")
	}

	turn := entity.NewConversationTurn(project.ID, entity.RoleAssistant, entity.TurnKindChat, content, nil)
	if err := c.repos.Turns.Append(ctx, turn); err != nil {
		return nil, err
	}
	outcome := &ChatOutcome{AssistantTurn: turn, Status: project.Status, Usage: usage}

	latest, err := c.repos.Turns.LatestByRole(ctx, project.ID, entity.RoleAssistant)
	if err != nil {
		return nil, err
	}
	if !c.readiness.IsReadyForResearch(latest) {
		return outcome, nil
	}

	artifact, err := c.startResearch(ctx, project)
	if err != nil {
		return nil, err
	}
	outcome.Ready = true
	outcome.Status = project.Status
	outcome.Artifact = artifact
	return outcome, nil
}

// startResearch chatting -> researching；已有调研产物时完整重启
func (c *Controller) startResearch(ctx context.Context, project *entity.Project) (*entity.ResearchArtifact, error) {
	var artifact *entity.ResearchArtifact
	err := c.repos.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.advance(txCtx, project, entity.ProjectEventReadyForResearch); err != nil {
			return err
		}
		existing, err := c.repos.Research.GetByProject(txCtx, project.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			artifact, err = c.repos.Research.Restart(txCtx, existing.ID)
			if err != nil {
				return err
			}
		} else {
			artifact = entity.NewResearchArtifact(project.ID)
			if err := c.repos.Research.Create(txCtx, artifact); err != nil {
				return err
			}
		}
		// 之前的对话不算作阶段反馈
		last, err := c.repos.Turns.LatestByRole(txCtx, project.ID, entity.RoleAssistant)
		if err != nil {
			return err
		}
		if last != nil {
			if err := c.repos.Research.SetPresentedTurn(txCtx, artifact.ID, last.OrderIndex); err != nil {
				return err
			}
			artifact.PresentedTurnIndex = last.OrderIndex
		}
		return c.repos.Projects.UpdateAuxStatus(txCtx, project.ID, string(artifact.Status), "")
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "conversation ready for research", "project_id", project.ID, "artifact_id", artifact.ID)
	c.publish(ctx, project, service.EventResearchStarted, map[string]any{"artifact_id": artifact.ID})
	return artifact, nil
}

func (c *Controller) readyMarker() string {
	if m, ok := c.readiness.(MarkerPredicate); ok {
		return m.Marker
	}
	return NewMarkerPredicate(c.cfg.Generation.ReadyMark).Marker
}

// historyMessages 把对话日志转成模型消息，只保留最近 maxTurns 轮
func historyMessages(turns []*entity.ConversationTurn, maxTurns int) []*schema.Message {
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	msgs := make([]*schema.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case entity.RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case entity.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return msgs
}
