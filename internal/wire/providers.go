// Package wire 提供依赖注入配置
package wire

import (
	"context"
	"fmt"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/application/quota"
	"spec-forge-api/internal/application/research"
	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/repository"
	"spec-forge-api/internal/domain/service"
	"spec-forge-api/internal/infrastructure/llm"
	"spec-forge-api/internal/infrastructure/messaging"
	"spec-forge-api/internal/infrastructure/persistence/memory"
	"spec-forge-api/internal/infrastructure/persistence/postgres"
	"spec-forge-api/internal/infrastructure/persistence/redis"
	"spec-forge-api/internal/interfaces/http/handler"
	"spec-forge-api/internal/interfaces/http/middleware"
	einoobs "spec-forge-api/internal/observability/eino"
	wfchain "spec-forge-api/internal/workflow/chain"
	workflowport "spec-forge-api/internal/workflow/port"
	"spec-forge-api/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DataLayer 数据层依赖容器；memory 驱动时 Postgres 为 nil
type DataLayer struct {
	Repos    lifecycle.Repositories
	Usage    repository.LLMUsageEventRepository
	Postgres *postgres.Client
}

// Worker job-worker 的依赖容器
type Worker struct {
	Controller *lifecycle.Controller
	Redis      *redis.Client
}

// ProvideDataLayer 按 database.driver 选择持久化实现
func ProvideDataLayer(cfg *config.Config) (*DataLayer, func(), error) {
	switch cfg.Database.Driver {
	case "", DriverPostgres:
		client, err := postgres.NewClient(&cfg.Database.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			client.Close()
		}
		return &DataLayer{
			Repos: lifecycle.Repositories{
				Projects:   postgres.NewProjectRepository(client),
				Turns:      postgres.NewConversationTurnRepository(client),
				Research:   postgres.NewResearchArtifactRepository(client),
				Documents:  postgres.NewGeneratedDocumentRepository(client),
				Downloads:  postgres.NewDownloadEventRepository(client),
				Transactor: postgres.NewTxManager(client),
			},
			Usage:    postgres.NewLLMUsageEventRepository(client),
			Postgres: client,
		}, cleanup, nil
	case DriverMemory:
		store := memory.NewStore()
		return &DataLayer{
			Repos: lifecycle.Repositories{
				Projects:   memory.NewProjectRepository(store),
				Turns:      memory.NewConversationTurnRepository(store),
				Research:   memory.NewResearchArtifactRepository(store),
				Documents:  memory.NewGeneratedDocumentRepository(store),
				Downloads:  memory.NewDownloadEventRepository(store),
				Transactor: memory.NewTransactor(store),
			},
			Usage: memory.NewLLMUsageEventRepository(store),
		}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideRedisClientOptional API 网关可选 Redis（不可达时不阻塞启动，进度镜像、限流与消息降级）
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, progress cache, rate limiting and messaging disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	cleanup := func() {
		_ = client.Close()
	}
	return client, cleanup, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	if redisClient == nil {
		return nil
	}
	return messaging.NewProducer(redisClient.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideEventPublisher features.notifications 打开时发布到 Redis Stream
func ProvideEventPublisher(producer *messaging.Producer, cfg *config.Config) service.EventPublisher {
	if producer == nil || !cfg.Features.Notifications {
		return service.NoopEventPublisher{}
	}
	return messaging.NewEventPublisher(producer)
}

// ProvideJobQueue 没有 Redis 时不支持异步生成
func ProvideJobQueue(producer *messaging.Producer) service.JobQueue {
	if producer == nil {
		return nil
	}
	return messaging.NewJobQueue(producer)
}

// ProvideRateLimiter 没有 Redis 时不限流
func ProvideRateLimiter(redisClient *redis.Client) middleware.RateLimiter {
	if redisClient == nil {
		return nil
	}
	return redis.NewRateLimiter(redisClient)
}

// ProvideProgressStore 没有 Redis 时进度只推送给当前连接
func ProvideProgressStore(redisClient *redis.Client, cfg *config.Config) handler.ProgressStore {
	if redisClient == nil {
		return nil
	}
	return redis.NewProgressCache(redisClient, cfg.Cache.ProgressTTL)
}

// ProvideCapability 提供模型能力客户端，并注册用量回调
func ProvideCapability(cfg *config.Config, data *DataLayer) workflowport.Capability {
	pricing := llm.NewPricing(cfg)
	einoobs.Init(quota.NewLLMUsageRecorder(data.Usage), pricing)
	return llm.NewCapability(llm.NewEinoFactory(cfg), cfg)
}

// ProvideStructuredCaller 结构化调用，重试策略来自 llm.retry
func ProvideStructuredCaller(capability workflowport.Capability, cfg *config.Config) *wfchain.StructuredCaller {
	return wfchain.NewStructuredCaller(capability, wfchain.RetryPolicyFromConfig(cfg.LLM.Retry))
}

// ProvidePipeline 调研流水线
func ProvidePipeline(caller *wfchain.StructuredCaller, data *DataLayer, cfg *config.Config) *research.Pipeline {
	return research.NewPipeline(caller, data.Repos.Research, data.Repos.Turns, cfg)
}

// ProvideEngine 文档生成与校验
func ProvideEngine(caller *wfchain.StructuredCaller, data *DataLayer, cfg *config.Config) *specgen.Engine {
	return specgen.NewEngine(caller, data.Repos.Documents, cfg)
}

// ProvideQuotaChecker 每日 token 配额
func ProvideQuotaChecker(data *DataLayer, cfg *config.Config) *quota.TokenQuotaChecker {
	return quota.NewTokenQuotaChecker(data.Usage, cfg)
}

// ProvideController 生命周期控制器
func ProvideController(
	data *DataLayer,
	capability workflowport.Capability,
	pipeline *research.Pipeline,
	engine *specgen.Engine,
	quotaChecker *quota.TokenQuotaChecker,
	events service.EventPublisher,
	jobs service.JobQueue,
	cfg *config.Config,
) *lifecycle.Controller {
	opts := []lifecycle.Option{
		lifecycle.WithReadiness(lifecycle.NewMarkerPredicate(cfg.Generation.ReadyMark)),
		lifecycle.WithQuota(quotaChecker),
		lifecycle.WithEvents(events),
		lifecycle.WithPackager(lifecycle.MarkdownPackager{}),
	}
	if jobs != nil {
		opts = append(opts, lifecycle.WithJobs(jobs))
	}
	return lifecycle.NewController(data.Repos, capability, pipeline, engine, cfg, opts...)
}

// ProvideHealthHandler postgres 必需；redis 可选
func ProvideHealthHandler(cfg *config.Config, data *DataLayer, redisClient *redis.Client) *handler.HealthHandler {
	checks := make([]handler.DependencyCheck, 0, 2)
	if data.Postgres != nil {
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Checker: data.Postgres, Required: true})
	} else {
		checks = append(checks, handler.DependencyCheck{Name: "postgres"})
	}
	if redisClient != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Checker: redisClient})
	} else {
		checks = append(checks, handler.DependencyCheck{Name: "redis"})
	}
	return handler.NewHealthHandler(cfg.App.Version, checks...)
}

// ProvideAuthConfig 提供认证配置
func ProvideAuthConfig(cfg *config.Config) middleware.AuthConfig {
	return middleware.AuthConfig{
		Secret:        cfg.Security.JWT.Secret,
		Issuer:        cfg.Security.JWT.Issuer,
		SkipPaths:     middleware.DefaultSkipPaths,
		Enabled:       cfg.Security.Auth.Enabled,
		DevUserHeader: cfg.Security.Auth.DevUserHeader,
	}
}
