package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	apperrors "spec-forge-api/pkg/errors"
)

func TestChatModelConfig(t *testing.T) {
	cfg := chatModelConfig(config.ProviderConfig{
		APIKey: "k", BaseURL: "http://llm", Model: "large",
		MaxTokens: 4096, Temperature: 0.3, Timeout: time.Minute,
	})
	require.NotNil(t, cfg.MaxTokens)
	assert.Equal(t, 4096, *cfg.MaxTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.3, *cfg.Temperature, 1e-6)
	assert.Equal(t, time.Minute, cfg.Timeout)

	search := chatModelConfig(config.ProviderConfig{APIKey: "k", Model: "search", WebSearch: true})
	assert.Nil(t, search.Temperature)
	assert.Nil(t, search.MaxTokens)
}

func TestEinoFactoryUnknownProvider(t *testing.T) {
	f := NewEinoFactory(testLLMConfig())

	_, err := f.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)

	// fast 没有配置 api key
	_, err = f.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
}
