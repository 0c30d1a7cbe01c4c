//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/interfaces/http/handler"
	"spec-forge-api/internal/interfaces/http/router"
)

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		DataSet,
		RedisOptionalSet,
		MessagingSet,
		LifecycleSet,
		RouterSet,
	)
	return nil, nil, nil
}

// InitializeWorker 初始化生成任务 worker（Redis 必需）
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	wire.Build(
		DataSet,
		ProvideRedisClient,
		MessagingSet,
		LifecycleSet,
		wire.Struct(new(Worker), "*"),
	)
	return nil, nil, nil
}

// InitializeDataLayer 仅初始化数据层（用于 specctl）
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	wire.Build(DataSet)
	return nil, nil, nil
}

// DataSet 数据层提供者集合
var DataSet = wire.NewSet(
	ProvideDataLayer,
)

// RedisOptionalSet Redis 及其派生组件
var RedisOptionalSet = wire.NewSet(
	ProvideRedisClientOptional,
	ProvideRateLimiter,
	ProvideProgressStore,
)

// MessagingSet 消息队列提供者集合
var MessagingSet = wire.NewSet(
	ProvideMessagingProducer,
	ProvideEventPublisher,
	ProvideJobQueue,
)

// LifecycleSet 模型调用、流水线与生命周期控制
var LifecycleSet = wire.NewSet(
	ProvideCapability,
	ProvideStructuredCaller,
	ProvidePipeline,
	ProvideEngine,
	ProvideQuotaChecker,
	ProvideController,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	ProvideAuthConfig,
	ProvideHealthHandler,
	handler.NewProjectHandler,
	handler.NewStreamHandler,
	handler.NewResearchHandler,
	handler.NewDocumentHandler,
	handler.NewAdminHandler,
	wire.Struct(new(router.RouterHandlers), "*"),
	router.NewWithDeps,
)
