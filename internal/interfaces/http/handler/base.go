// Package handler 提供 HTTP 请求处理器
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/interfaces/http/dto"
	"spec-forge-api/internal/interfaces/http/middleware"
	apperrors "spec-forge-api/pkg/errors"
	"spec-forge-api/pkg/logger"
)

// writeError 将应用错误映射为 HTTP 响应；5xx 只返回通用信息
func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var below *specgen.BelowThresholdError
	if errors.As(err, &below) {
		dto.ErrorWithData(c, http.StatusUnprocessableEntity, "document quality below threshold",
			&dto.ErrorDetail{ErrorCode: string(apperrors.CodeValidationBelowThreshold), Details: below.Error()},
			&dto.BelowThresholdResponse{
				DocumentID: below.DocumentID,
				Score:      below.Score,
				Threshold:  specgen.QualityThreshold,
				Findings:   below.Findings,
			})
		return
	}

	appErr := apperrors.AsAppError(err)
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusBadGateway {
		logger.Error(ctx, "request failed", err, "path", c.FullPath())
		dto.ErrorWithDetail(c, status, "internal server error", &dto.ErrorDetail{ErrorCode: string(appErr.Code)})
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Warn(ctx, "upstream unavailable", "path", c.FullPath(), "error", err.Error())
	}

	detail := appErr.Detail
	if detail == "" && err != appErr {
		detail = err.Error()
	}
	dto.ErrorWithDetail(c, status, appErr.Message, &dto.ErrorDetail{
		ErrorCode: string(appErr.Code),
		Details:   detail,
	})
}

// bindError 请求体校验失败
func bindError(c *gin.Context, err error) {
	dto.ErrorWithDetail(c, http.StatusBadRequest, "invalid request body", &dto.ErrorDetail{
		ErrorCode: string(apperrors.CodeInvalidParam),
		Details:   err.Error(),
	})
}

// ownerID 当前请求的用户；认证中间件保证非空
func ownerID(c *gin.Context) string {
	return strings.TrimSpace(middleware.GetUserIDFromGin(c))
}
