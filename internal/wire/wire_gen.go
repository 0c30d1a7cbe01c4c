//go:generate go run -mod=mod github.com/google/wire/cmd/wire
//go:build !wireinject
// +build !wireinject

package wire

import (
	"context"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/interfaces/http/handler"
	"spec-forge-api/internal/interfaces/http/router"
)

// Injectors from wire.go:

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	dataLayer, cleanup, err := ProvideDataLayer(cfg)
	if err != nil {
		return nil, nil, err
	}
	authConfig := ProvideAuthConfig(cfg)
	client, cleanup2, err := ProvideRedisClientOptional(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	rateLimiter := ProvideRateLimiter(client)
	healthHandler := ProvideHealthHandler(cfg, dataLayer, client)
	capability := ProvideCapability(cfg, dataLayer)
	structuredCaller := ProvideStructuredCaller(capability, cfg)
	pipeline := ProvidePipeline(structuredCaller, dataLayer, cfg)
	engine := ProvideEngine(structuredCaller, dataLayer, cfg)
	tokenQuotaChecker := ProvideQuotaChecker(dataLayer, cfg)
	producer := ProvideMessagingProducer(client, cfg)
	eventPublisher := ProvideEventPublisher(producer, cfg)
	jobQueue := ProvideJobQueue(producer)
	controller := ProvideController(dataLayer, capability, pipeline, engine, tokenQuotaChecker, eventPublisher, jobQueue, cfg)
	projectHandler := handler.NewProjectHandler(controller)
	progressStore := ProvideProgressStore(client, cfg)
	streamHandler := handler.NewStreamHandler(controller, progressStore)
	researchHandler := handler.NewResearchHandler(controller, progressStore)
	documentHandler := handler.NewDocumentHandler(controller)
	adminHandler := handler.NewAdminHandler(controller)
	routerHandlers := &router.RouterHandlers{
		Health:   healthHandler,
		Project:  projectHandler,
		Stream:   streamHandler,
		Research: researchHandler,
		Document: documentHandler,
		Admin:    adminHandler,
	}
	routerRouter := router.NewWithDeps(cfg, authConfig, rateLimiter, routerHandlers)
	return routerRouter, func() {
		cleanup2()
		cleanup()
	}, nil
}

// InitializeWorker 初始化生成任务 worker（Redis 必需）
func InitializeWorker(ctx context.Context, cfg *config.Config) (*Worker, func(), error) {
	dataLayer, cleanup, err := ProvideDataLayer(cfg)
	if err != nil {
		return nil, nil, err
	}
	capability := ProvideCapability(cfg, dataLayer)
	structuredCaller := ProvideStructuredCaller(capability, cfg)
	pipeline := ProvidePipeline(structuredCaller, dataLayer, cfg)
	engine := ProvideEngine(structuredCaller, dataLayer, cfg)
	tokenQuotaChecker := ProvideQuotaChecker(dataLayer, cfg)
	client, cleanup2, err := ProvideRedisClient(cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	producer := ProvideMessagingProducer(client, cfg)
	eventPublisher := ProvideEventPublisher(producer, cfg)
	jobQueue := ProvideJobQueue(producer)
	controller := ProvideController(dataLayer, capability, pipeline, engine, tokenQuotaChecker, eventPublisher, jobQueue, cfg)
	worker := &Worker{
		Controller: controller,
		Redis:      client,
	}
	return worker, func() {
		cleanup2()
		cleanup()
	}, nil
}

// InitializeDataLayer 仅初始化数据层（用于 specctl）
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	dataLayer, cleanup, err := ProvideDataLayer(cfg)
	if err != nil {
		return nil, nil, err
	}
	return dataLayer, func() {
		cleanup()
	}, nil
}
