package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/service"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// Generate 生成并校验规格文档；达标后进入 review，未达标时项目停留在 generating
func (c *Controller) Generate(ctx context.Context, projectID, ownerID string, integrations []string) (*specgen.Result, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.requireStatus(project, entity.ProjectStatusGenerating, "generate"); err != nil {
		return nil, err
	}
	if err := c.checkQuota(ctx, ownerID); err != nil {
		return nil, err
	}

	artifact, err := c.repos.Research.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, apperrors.ErrResearchNotFound
	}
	turns, err := c.repos.Turns.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	ctx = service.WithOwnerProject(ctx, ownerID, projectID)
	ctx, cancel := c.withBudget(ctx)
	defer cancel()

	result, err := c.engine.Generate(ctx, specgen.Input{
		ProjectID:    projectID,
		ProjectName:  project.Name,
		Research:     artifact,
		Turns:        turns,
		Integrations: cleanList(integrations),
	})
	if result != nil {
		c.syncSpecStatus(ctx, project, result.Document)
	}

	var below *specgen.BelowThresholdError
	if errors.As(err, &below) {
		c.publish(ctx, project, service.EventSpecFailed, map[string]any{
			"document_id":   below.DocumentID,
			"quality_score": below.Score,
		})
		return result, err
	}
	if err != nil {
		return nil, err
	}

	if err := c.advance(ctx, project, entity.ProjectEventSpecAccepted); err != nil {
		return nil, err
	}
	c.publish(ctx, project, service.EventSpecReady, map[string]any{
		"document_id":      result.Document.ID,
		"quality_score":    result.Document.QualityScore,
		"auto_fix_applied": result.Document.AutoFixApplied,
	})
	return result, nil
}

// EnqueueGenerate 校验状态后投递异步生成任务，由 job-worker 执行 Generate
func (c *Controller) EnqueueGenerate(ctx context.Context, projectID, ownerID string, integrations []string) (string, error) {
	if c.jobs == nil {
		return "", apperrors.ErrServiceUnavailable.WithDetail("async generation is not configured")
	}
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return "", err
	}
	if err := c.requireStatus(project, entity.ProjectStatusGenerating, "generate"); err != nil {
		return "", err
	}
	if err := c.checkQuota(ctx, ownerID); err != nil {
		return "", err
	}
	jobID, err := c.jobs.EnqueueGenerate(ctx, service.GenerateJob{
		JobID:        uuid.NewString(),
		ProjectID:    projectID,
		OwnerID:      ownerID,
		Integrations: cleanList(integrations),
		RequestedAt:  c.now().UTC(),
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "failed to enqueue generation")
	}
	logger.Info(ctx, "spec generation enqueued", "project_id", projectID, "job_id", jobID)
	return jobID, nil
}

// Approve review -> complete
func (c *Controller) Approve(ctx context.Context, projectID, ownerID string) (*entity.Project, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.advance(ctx, project, entity.ProjectEventApprove); err != nil {
		return nil, err
	}
	c.publish(ctx, project, service.EventProjectApproved, nil)
	return project, nil
}

// RequestChanges review -> chatting，变更说明记为 change_request 轮次
func (c *Controller) RequestChanges(ctx context.Context, projectID, ownerID, feedback string) (*entity.Project, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}

	err = c.repos.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.advance(txCtx, project, entity.ProjectEventRequestChanges); err != nil {
			return err
		}
		if text := strings.TrimSpace(feedback); text != "" {
			turn := entity.NewConversationTurn(projectID, entity.RoleUser, entity.TurnKindChangeRequest, text, nil)
			if err := c.repos.Turns.Append(txCtx, turn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(ctx, project, service.EventChangesRequested, nil)
	return project, nil
}

// Archive complete -> archived，项目不会被物理删除
func (c *Controller) Archive(ctx context.Context, projectID, ownerID string) (*entity.Project, error) {
	project, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if err := c.advance(ctx, project, entity.ProjectEventArchive); err != nil {
		return nil, err
	}
	c.publish(ctx, project, service.EventProjectArchived, nil)
	return project, nil
}

// CreateVersion 基于已完成项目派生新版本：源项目保持 complete，
// 新项目直接进入 review，并复制对话、调研产物与文档
func (c *Controller) CreateVersion(ctx context.Context, projectID, ownerID string) (*entity.Project, error) {
	source, err := c.GetProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	next, err := source.NewVersion()
	if err != nil {
		return nil, err
	}

	err = c.repos.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.repos.Projects.Create(txCtx, next); err != nil {
			return err
		}

		turns, err := c.repos.Turns.ListByProject(txCtx, source.ID)
		if err != nil {
			return err
		}
		for _, t := range turns {
			cp := entity.NewConversationTurn(next.ID, t.Role, t.Kind, t.Content, t.Metadata)
			if err := c.repos.Turns.Append(txCtx, cp); err != nil {
				return err
			}
		}

		artifact, err := c.repos.Research.GetByProject(txCtx, source.ID)
		if err != nil {
			return err
		}
		if artifact != nil {
			cp := *artifact
			cp.ID = ""
			cp.ProjectID = next.ID
			if err := c.repos.Research.Create(txCtx, &cp); err != nil {
				return err
			}
		}

		doc, err := c.repos.Documents.GetByProject(txCtx, source.ID)
		if err != nil {
			return err
		}
		if doc != nil {
			cp := *doc
			cp.ID = ""
			cp.ProjectID = next.ID
			cp.Locked = false
			cp.Attempt = 1
			if err := c.repos.Documents.Save(txCtx, &cp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "project version created",
		"project_id", next.ID,
		"parent_project_id", source.ID,
		"version", next.Version,
	)
	c.publish(ctx, next, service.EventVersionCreated, map[string]any{
		"parent_project_id": source.ID,
		"version":           next.Version,
	})
	return next, nil
}

func (c *Controller) syncSpecStatus(ctx context.Context, project *entity.Project, doc *entity.GeneratedDocument) {
	if doc == nil {
		return
	}
	if err := c.repos.Projects.UpdateAuxStatus(context.WithoutCancel(ctx), project.ID, "", string(doc.Status)); err != nil {
		logger.Warn(ctx, "failed to update spec status", "project_id", project.ID, "error", err.Error())
		return
	}
	project.SpecStatus = string(doc.Status)
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
