// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"

	// 认证授权错误 (2xxx)
	CodeTokenExpired     ErrorCode = "2001"
	CodeTokenInvalid     ErrorCode = "2002"
	CodeTokenMissing     ErrorCode = "2003"
	CodePermissionDenied ErrorCode = "2004"
	CodeQuotaExceeded    ErrorCode = "2005"

	// 资源错误 (3xxx)
	CodeProjectNotFound  ErrorCode = "3001"
	CodeResearchNotFound ErrorCode = "3002"
	CodeDocumentNotFound ErrorCode = "3003"

	// 流水线状态错误 (4xxx)
	CodeIllegalTransition        ErrorCode = "4001"
	CodePhaseAlreadyWritten      ErrorCode = "4002"
	CodeNotReady                 ErrorCode = "4003"
	CodeValidationBelowThreshold ErrorCode = "4004"
	CodeMalformedOutput          ErrorCode = "4005"

	// 外部服务错误 (5xxx)
	CodeDatabaseError       ErrorCode = "5001"
	CodeCacheError          ErrorCode = "5002"
	CodeProviderUnavailable ErrorCode = "5005"
)

// httpStatus 未列出的错误码按 500 处理
var httpStatus = map[ErrorCode]int{
	CodeSuccess:                  http.StatusOK,
	CodeInvalidParam:             http.StatusBadRequest,
	CodeUnauthorized:             http.StatusUnauthorized,
	CodeTokenExpired:             http.StatusUnauthorized,
	CodeTokenInvalid:             http.StatusUnauthorized,
	CodeTokenMissing:             http.StatusUnauthorized,
	CodeForbidden:                http.StatusForbidden,
	CodePermissionDenied:         http.StatusForbidden,
	CodeNotFound:                 http.StatusNotFound,
	CodeProjectNotFound:          http.StatusNotFound,
	CodeResearchNotFound:         http.StatusNotFound,
	CodeDocumentNotFound:         http.StatusNotFound,
	CodeConflict:                 http.StatusConflict,
	CodeIllegalTransition:        http.StatusConflict,
	CodePhaseAlreadyWritten:      http.StatusConflict,
	CodeNotReady:                 http.StatusConflict,
	CodeValidationBelowThreshold: http.StatusUnprocessableEntity,
	CodeMalformedOutput:          http.StatusBadGateway,
	CodeTooManyRequests:          http.StatusTooManyRequests,
	CodeQuotaExceeded:            http.StatusTooManyRequests,
	CodeServiceUnavailable:       http.StatusServiceUnavailable,
	CodeProviderUnavailable:      http.StatusServiceUnavailable,
}

// HTTPStatus 错误码对应的 HTTP 状态码
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// AppError 携带错误码的业务错误；Err 为底层原因
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

func (e *AppError) Error() string {
	msg := "[" + string(e.Code) + "] " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

// Is 按错误码匹配，errors.Is(err, ErrNotReady) 对任意同码错误成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e.Code == t.Code
}

// WithDetail 返回副本，哨兵错误不会被修改
func (e *AppError) WithDetail(detail string) *AppError {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithError 返回附带底层错误的副本
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: code.HTTPStatus()}
}

func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return New(code, message).WithError(err)
}

var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrForbidden          = New(CodeForbidden, "forbidden")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")
	ErrQuotaExceeded      = New(CodeQuotaExceeded, "token quota exceeded")
	ErrTokenExpired       = New(CodeTokenExpired, "token expired")

	ErrProjectNotFound  = New(CodeProjectNotFound, "project not found")
	ErrResearchNotFound = New(CodeResearchNotFound, "research artifact not found")
	ErrDocumentNotFound = New(CodeDocumentNotFound, "generated document not found")

	ErrIllegalTransition        = New(CodeIllegalTransition, "illegal status transition")
	ErrPhaseAlreadyWritten      = New(CodePhaseAlreadyWritten, "research phase already written")
	ErrNotReady                 = New(CodeNotReady, "not ready")
	ErrValidationBelowThreshold = New(CodeValidationBelowThreshold, "document quality below threshold")
	ErrMalformedOutput          = New(CodeMalformedOutput, "malformed model output")
	ErrProviderUnavailable      = New(CodeProviderUnavailable, "model provider unavailable")
)

// AsAppError 取错误链中的 AppError；没有时包装为 CodeUnknown
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// IsRetryable 仅 ProviderUnavailable 允许重试
func IsRetryable(err error) bool {
	return stderrors.Is(err, ErrProviderUnavailable)
}
