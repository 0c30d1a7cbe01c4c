package main

import (
	"context"
	"errors"
	"fmt"

	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/domain/service"
	"spec-forge-api/internal/infrastructure/messaging"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// Generator 执行文档生成，由 lifecycle.Controller 实现
type Generator interface {
	Generate(ctx context.Context, projectID, ownerID string, integrations []string) (*specgen.Result, error)
}

// permanentCodes 重试无法改变结果的错误
var permanentCodes = []error{
	apperrors.ErrInvalidParam,
	apperrors.ErrForbidden,
	apperrors.ErrProjectNotFound,
	apperrors.ErrResearchNotFound,
	apperrors.ErrIllegalTransition,
	apperrors.ErrNotReady,
	apperrors.ErrQuotaExceeded,
	apperrors.ErrMalformedOutput,
	apperrors.ErrPhaseAlreadyWritten,
}

func generateHandler(gen Generator) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		log := logger.FromContext(ctx).With("message_id", msg.ID)

		var job service.GenerateJob
		if err := msg.UnmarshalPayload(&job); err != nil {
			return fmt.Errorf("%w: decode generate job: %w", messaging.ErrPermanent, err)
		}
		if job.ProjectID == "" || job.OwnerID == "" {
			return fmt.Errorf("%w: generate job %s missing project or owner", messaging.ErrPermanent, job.JobID)
		}
		log = log.With("job_id", job.JobID, "project_id", job.ProjectID)

		result, err := gen.Generate(ctx, job.ProjectID, job.OwnerID, job.Integrations)
		if err == nil {
			log.Info("spec generated",
				"document_id", result.Document.ID,
				"quality_score", result.Report.Score,
				"auto_fix", result.Document.AutoFixApplied)
			return nil
		}

		var below *specgen.BelowThresholdError
		if errors.As(err, &below) {
			// 文档已落库为 failed，重试只会重复消耗 token
			log.Warn("spec below quality threshold", "document_id", below.DocumentID, "score", below.Score)
			return nil
		}
		if isPermanent(err) {
			return fmt.Errorf("%w: %w", messaging.ErrPermanent, err)
		}
		return err
	}
}

func isPermanent(err error) bool {
	for _, target := range permanentCodes {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// notifyHandler 消费项目事件；当前以结构化日志作为通知出口
func notifyHandler() messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var event service.DomainEvent
		if err := msg.UnmarshalPayload(&event); err != nil {
			return fmt.Errorf("%w: decode domain event: %w", messaging.ErrPermanent, err)
		}
		args := []any{
			"type", string(event.Type),
			"project_id", event.ProjectID,
			"owner_id", event.OwnerID,
			"at", event.At,
		}
		for k, v := range event.Data {
			args = append(args, k, v)
		}
		logger.FromContext(ctx).Info("project notification", args...)
		return nil
	}
}
