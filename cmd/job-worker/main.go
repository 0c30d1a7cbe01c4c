// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spec-forge-api/internal/config"
	"spec-forge-api/internal/domain/service"
	"spec-forge-api/internal/infrastructure/messaging"
	"spec-forge-api/internal/wire"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/tracer"

	"github.com/joho/godotenv"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup(logger.Config(cfg.Observability.Logging)); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Version:     cfg.App.Version,
		Environment: cfg.App.Env,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to init worker", err)
	}
	defer cleanup()

	consumers := []*messaging.Consumer{newGenerateConsumer(cfg, worker)}
	if cfg.Features.Notifications {
		consumers = append(consumers, newNotifyConsumer(cfg, worker))
	}

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Fatal(ctx, "failed to start consumer", err)
		}
		go c.MonitorDLQ(ctx, dlqAlertThreshold)
	}

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "consumers", len(consumers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("job-worker shutting down")
	cancel()
	for _, c := range consumers {
		c.Stop()
	}
}

func newGenerateConsumer(cfg *config.Config, worker *wire.Worker) *messaging.Consumer {
	consumer := messaging.NewConsumer(worker.Redis.Redis(), consumerConfig(cfg,
		messaging.StreamSpecGenerate, messaging.ConsumerGroupGenerateWorker))
	consumer.RegisterHandler(messaging.MessageTypeGenerate, generateHandler(worker.Controller))
	return consumer
}

func newNotifyConsumer(cfg *config.Config, worker *wire.Worker) *messaging.Consumer {
	consumer := messaging.NewConsumer(worker.Redis.Redis(), consumerConfig(cfg,
		messaging.StreamSpecEvents, messaging.ConsumerGroupNotifier))
	h := notifyHandler()
	for _, t := range service.AllEventTypes {
		consumer.RegisterHandler(string(t), h)
	}
	return consumer
}

func consumerConfig(cfg *config.Config, stream messaging.Stream, group messaging.ConsumerGroup) messaging.ConsumerConfig {
	rs := cfg.Messaging.RedisStream
	if rs.ConsumerGroupPrefix != "" {
		group = messaging.ConsumerGroup(rs.ConsumerGroupPrefix+":") + group
	}
	return messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	}
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
