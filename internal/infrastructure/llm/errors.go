package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strconv"
	"strings"

	apperrors "spec-forge-api/pkg/errors"
)

var statusCodePattern = regexp.MustCompile(`status code:?\s*(\d{3})`)

// classifyError 将提供商错误归类：网络、超时、5xx、429 视为 ProviderUnavailable，其余原样返回
func classifyError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// 调用方主动取消或总预算耗尽，不再重试
	if ctx.Err() != nil {
		return err
	}
	if IsTransient(err) {
		return apperrors.ErrProviderUnavailable.WithError(err)
	}
	return err
}

// IsTransient 判断错误是否为暂时性故障
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code == 429 || code >= 500
	}
	for _, s := range []string{
		"rate limit", "too many requests", "timeout", "timed out",
		"connection reset", "connection refused", "unexpected eof", "server overloaded",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
