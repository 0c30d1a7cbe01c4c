package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorIsMatchesByCode(t *testing.T) {
	err := Newf(CodeIllegalTransition, "cannot move from %s to %s", "review", "archived")
	wrapped := fmt.Errorf("approve: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrIllegalTransition))
	assert.False(t, stderrors.Is(wrapped, ErrNotReady))
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	detailed := ErrNotReady.WithDetail("project is in review")

	assert.Equal(t, "project is in review", detailed.Detail)
	assert.Empty(t, ErrNotReady.Detail)
	assert.True(t, stderrors.Is(detailed, ErrNotReady))
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		code ErrorCode
		want int
	}{
		{name: "illegal transition", code: CodeIllegalTransition, want: http.StatusConflict},
		{name: "phase written", code: CodePhaseAlreadyWritten, want: http.StatusConflict},
		{name: "not ready", code: CodeNotReady, want: http.StatusConflict},
		{name: "below threshold", code: CodeValidationBelowThreshold, want: http.StatusUnprocessableEntity},
		{name: "malformed", code: CodeMalformedOutput, want: http.StatusBadGateway},
		{name: "provider", code: CodeProviderUnavailable, want: http.StatusServiceUnavailable},
		{name: "quota", code: CodeQuotaExceeded, want: http.StatusTooManyRequests},
		{name: "unknown", code: CodeUnknown, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").HTTPStatus)
		})
	}
}

func TestAsAppErrorUnwrapsChain(t *testing.T) {
	inner := Wrap(stderrors.New("timeout"), CodeProviderUnavailable, "provider down")
	got := AsAppError(fmt.Errorf("phase 2: %w", inner))

	require.NotNil(t, got)
	assert.Equal(t, CodeProviderUnavailable, got.Code)
	assert.True(t, IsRetryable(got))
	assert.False(t, IsRetryable(ErrMalformedOutput))
	assert.Equal(t, CodeUnknown, AsAppError(stderrors.New("plain")).Code)
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "[4003] not ready", ErrNotReady.Error())
	assert.Equal(t, "[1000] unknown error: boom", Wrap(stderrors.New("boom"), CodeUnknown, "unknown error").Error())
	assert.Equal(t, http.StatusInternalServerError, ErrorCode("9999").HTTPStatus())
}
