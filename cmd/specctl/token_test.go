package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/config"
	"spec-forge-api/pkg/utils"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Security.JWT.Secret = "test-secret"
	cfg.Security.JWT.Issuer = "spec-forge"
	cfg.Security.JWT.Expiration = time.Hour
	return cfg
}

func runToken(t *testing.T, cfg *config.Config, args ...string) (map[string]any, error) {
	t.Helper()
	cmd := newTokenCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(withConfig(context.Background(), cfg)); err != nil {
		return nil, err
	}
	var body map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &body))
	return body, nil
}

func TestTokenCommand(t *testing.T) {
	cfg := testConfig()

	body, err := runToken(t, cfg, "user-42", "--role", "admin")
	require.NoError(t, err)
	assert.Equal(t, "user-42", body["user_id"])

	claims, err := utils.NewJWTManager("test-secret", "spec-forge").ParseToken(body["access_token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "user-42", claims.UserID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, utils.TokenTypeAccess, claims.Type)
}

func TestTokenCommandValidation(t *testing.T) {
	_, err := runToken(t, testConfig(), "user-42", "--role", "owner")
	assert.ErrorContains(t, err, "unknown role")

	cfg := testConfig()
	cfg.Security.JWT.Secret = ""
	_, err = runToken(t, cfg, "user-42")
	assert.ErrorContains(t, err, "secret")

	_, err = runToken(t, testConfig())
	assert.Error(t, err)
}
