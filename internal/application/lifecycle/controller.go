// Package lifecycle 实现项目生命周期控制：对话、调研、生成、评审与下载
package lifecycle

import (
	"context"
	"strings"
	"time"

	"spec-forge-api/internal/application/research"
	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
	"spec-forge-api/internal/domain/service"
	workflowport "spec-forge-api/internal/workflow/port"
	workflowprompt "spec-forge-api/internal/workflow/prompt"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

// QuotaChecker 调用模型前的配额检查
type QuotaChecker interface {
	CheckDailyTokens(ctx context.Context, ownerID string) error
}

// Repositories 生命周期依赖的仓储集合
type Repositories struct {
	Projects   repository.ProjectRepository
	Turns      repository.ConversationTurnRepository
	Research   repository.ResearchArtifactRepository
	Documents  repository.GeneratedDocumentRepository
	Downloads  repository.DownloadEventRepository
	Transactor repository.Transactor
}

// Controller 项目生命周期控制器，状态只通过迁移表变化
type Controller struct {
	repos     Repositories
	chat      workflowport.Capability
	pipeline  *research.Pipeline
	engine    *specgen.Engine
	readiness ReadinessPredicate
	quota     QuotaChecker
	events    service.EventPublisher
	jobs      service.JobQueue
	packager  Packager
	prompts   *workflowprompt.Registry
	cfg       *config.Config
	now       func() time.Time
}

// Option 可选依赖
type Option func(*Controller)

func WithReadiness(p ReadinessPredicate) Option {
	return func(c *Controller) { c.readiness = p }
}

func WithQuota(q QuotaChecker) Option {
	return func(c *Controller) { c.quota = q }
}

func WithEvents(p service.EventPublisher) Option {
	return func(c *Controller) { c.events = p }
}

func WithJobs(q service.JobQueue) Option {
	return func(c *Controller) { c.jobs = q }
}

func WithPackager(p Packager) Option {
	return func(c *Controller) { c.packager = p }
}

func NewController(
	repos Repositories,
	chat workflowport.Capability,
	pipeline *research.Pipeline,
	engine *specgen.Engine,
	cfg *config.Config,
	opts ...Option,
) *Controller {
	c := &Controller{
		repos:     repos,
		chat:      chat,
		pipeline:  pipeline,
		engine:    engine,
		readiness: NewMarkerPredicate(cfg.Generation.ReadyMark),
		events:    service.NoopEventPublisher{},
		packager:  MarkdownPackager{},
		prompts:   workflowprompt.Default(),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateProject 创建项目，描述作为第一轮用户发言
func (c *Controller) CreateProject(ctx context.Context, ownerID, name, description string) (*entity.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("name is required")
	}
	project := entity.NewProject(ownerID, name, strings.TrimSpace(description))

	err := c.repos.Transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := c.repos.Projects.Create(txCtx, project); err != nil {
			return err
		}
		if project.Description == "" {
			return nil
		}
		return c.repos.Turns.Append(txCtx, entity.NewConversationTurn(project.ID, entity.RoleUser, entity.TurnKindChat, project.Description, nil))
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "project created", "project_id", project.ID, "owner_id", ownerID)
	return project, nil
}

// GetProject 获取项目并校验所有者
func (c *Controller) GetProject(ctx context.Context, projectID, ownerID string) (*entity.Project, error) {
	project, err := c.repos.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, apperrors.ErrProjectNotFound
	}
	if !project.IsOwnedBy(ownerID) {
		return nil, apperrors.ErrForbidden.WithDetail("project belongs to another user")
	}
	return project, nil
}

// ListProjects 列出用户项目
func (c *Controller) ListProjects(ctx context.Context, ownerID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	return c.repos.Projects.ListByOwner(ctx, ownerID, pagination)
}

// ListTurns 对话日志
func (c *Controller) ListTurns(ctx context.Context, projectID, ownerID string) ([]*entity.ConversationTurn, error) {
	if _, err := c.GetProject(ctx, projectID, ownerID); err != nil {
		return nil, err
	}
	return c.repos.Turns.ListByProject(ctx, projectID)
}

// GetResearch 调研产物
func (c *Controller) GetResearch(ctx context.Context, projectID, ownerID string) (*entity.ResearchArtifact, error) {
	if _, err := c.GetProject(ctx, projectID, ownerID); err != nil {
		return nil, err
	}
	artifact, err := c.repos.Research.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, apperrors.ErrResearchNotFound
	}
	return artifact, nil
}

// GetDocument 规格文档
func (c *Controller) GetDocument(ctx context.Context, projectID, ownerID string) (*entity.GeneratedDocument, error) {
	if _, err := c.GetProject(ctx, projectID, ownerID); err != nil {
		return nil, err
	}
	doc, err := c.repos.Documents.GetByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperrors.ErrDocumentNotFound
	}
	return doc, nil
}

// TimeInStatus 项目在当前状态停留的时长
func (c *Controller) TimeInStatus(ctx context.Context, projectID string) (*entity.Project, time.Duration, error) {
	project, err := c.repos.Projects.GetByID(ctx, projectID)
	if err != nil {
		return nil, 0, err
	}
	if project == nil {
		return nil, 0, apperrors.ErrProjectNotFound
	}
	return project, project.TimeInStatus(c.now()), nil
}

// ListStale 在某状态停留超过 olderThan 的项目
func (c *Controller) ListStale(ctx context.Context, status entity.ProjectStatus, olderThan time.Duration, pagination repository.Pagination) (*repository.PagedResult[*entity.Project], error) {
	if !status.IsValid() {
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown status " + string(status))
	}
	if olderThan < 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail("older_than must not be negative")
	}
	return c.repos.Projects.ListByStatusChangedBefore(ctx, status, c.now().Add(-olderThan), pagination)
}

// advance 按事件推进状态，条件更新失败时返回 IllegalTransition
func (c *Controller) advance(ctx context.Context, project *entity.Project, event entity.ProjectEvent) error {
	from := project.Status
	to, err := entity.NextStatus(from, event)
	if err != nil {
		return err
	}
	if err := c.repos.Projects.TransitionStatus(ctx, project.ID, from, to); err != nil {
		return err
	}
	project.Status = to
	project.StatusChangedAt = c.now()
	metrics.ProjectTransitionTotal.WithLabelValues(string(from), string(to)).Inc()
	logger.Info(ctx, "project status changed",
		"project_id", project.ID,
		"from", string(from),
		"to", string(to),
		"event", string(event),
	)
	return nil
}

func (c *Controller) requireStatus(project *entity.Project, want entity.ProjectStatus, action string) error {
	if project.Status != want {
		return apperrors.Newf(apperrors.CodeNotReady, "%s requires status %s, project is %s", action, want, project.Status)
	}
	return nil
}

func (c *Controller) checkQuota(ctx context.Context, ownerID string) error {
	if c.quota == nil {
		return nil
	}
	return c.quota.CheckDailyTokens(ctx, ownerID)
}

// publish 尽力投递，失败只记录日志
func (c *Controller) publish(ctx context.Context, project *entity.Project, typ service.EventType, data map[string]any) {
	if c.events == nil {
		return
	}
	event := service.DomainEvent{
		Type:      typ,
		ProjectID: project.ID,
		OwnerID:   project.OwnerID,
		Data:      data,
		At:        c.now().UTC(),
	}
	if err := c.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn(ctx, "failed to publish project event",
			"project_id", project.ID,
			"event", string(typ),
			"error", err.Error(),
		)
	}
}

// withBudget HTTP 触发的模型操作统一受 request_budget 约束
func (c *Controller) withBudget(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.Pipeline.RequestBudget > 0 {
		return context.WithTimeout(ctx, c.cfg.Pipeline.RequestBudget)
	}
	return context.WithCancel(ctx)
}
