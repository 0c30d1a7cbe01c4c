// Package config 提供配置加载功能
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 相对工作目录的配置目录
const DefaultDir = "configs"

// Load 从 DefaultDir 加载
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 依次合并 config.yaml、config.<APP_ENV>.yaml、config.local.yaml，
// 环境变量最后覆盖；只有 config.yaml 是必需的
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	layers := []struct {
		name     string
		required bool
	}{
		{"config.yaml", true},
		{"config." + env + ".yaml", false},
		{"config.local.yaml", false},
	}
	for _, l := range layers {
		if err := mergeFile(v, filepath.Join(dir, l.name), l.required); err != nil {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.App.Env == "" {
		cfg.App.Env = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// mergeFile 展开 ${VAR:default} 后合并进 v
func mergeFile(v *viper.Viper, path string, required bool) error {
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
	case !required && os.IsNotExist(err):
		return nil
	default:
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.MergeConfig(bytes.NewReader([]byte(expandEnv(string(raw))))); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:[^}]*)?\}`)

// expandEnv 替换 ${VAR} 与 ${VAR:default}；未设置且无默认值的占位符原样保留
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(ref string) string {
		name, def, hasDef := strings.Cut(ref[2:len(ref)-1], ":")
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		if hasDef {
			return def
		}
		return ref
	})
}

// MustLoad 加载失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate 校验启动必需的配置项
func (c *Config) Validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	for tier, provider := range c.LLM.Tiers {
		if _, ok := c.LLM.Providers[provider]; !ok {
			return fmt.Errorf("llm tier %q references unknown provider %q", tier, provider)
		}
	}
	if c.Pipeline.RequestBudget <= 0 {
		return fmt.Errorf("pipeline.request_budget must be positive")
	}
	return nil
}

var defaults = map[string]any{
	"app.name":    "spec-forge-api",
	"app.version": "v0.0.0",

	"server.http.host":          "0.0.0.0",
	"server.http.port":          8080,
	"server.http.read_timeout":  "30s",
	"server.http.write_timeout": "0s",
	"server.http.idle_timeout":  "120s",

	"database.driver":                      "postgres",
	"database.postgres.host":               "localhost",
	"database.postgres.port":               5432,
	"database.postgres.user":               "postgres",
	"database.postgres.database":           "spec_forge",
	"database.postgres.ssl_mode":           "disable",
	"database.postgres.max_open_conns":     50,
	"database.postgres.max_idle_conns":     10,
	"database.postgres.conn_max_lifetime":  "30m",
	"database.postgres.conn_max_idle_time": "5m",
	"database.postgres.auto_migrate":       false,

	"cache.redis.host":           "localhost",
	"cache.redis.port":           6379,
	"cache.redis.db":             0,
	"cache.redis.pool_size":      100,
	"cache.redis.min_idle_conns": 10,
	"cache.redis.dial_timeout":   "5s",
	"cache.redis.read_timeout":   "3s",
	"cache.redis.write_timeout":  "3s",
	"cache.progress_ttl":         "24h",

	"llm.retry.max_attempts":       3,
	"llm.retry.backoff.initial":    "1s",
	"llm.retry.backoff.max":        "20s",
	"llm.retry.backoff.multiplier": 2.0,

	"research.phase_timeout":       "3m",
	"research.require_feedback":    true,
	"research.phase_tiers.phase_1": "search",
	"research.phase_tiers.phase_2": "fast",
	"research.phase_tiers.phase_3": "advanced",
	"research.phase_tiers.phase_4": "fast",
	"generation.tier":              "advanced",
	"generation.fix_tier":          "advanced",
	"generation.chat_tier":         "fast",
	"generation.timeout":           "4m",
	"generation.max_turns":         60,
	"generation.ready_marker":      "[READY_FOR_RESEARCH]",
	"pipeline.request_budget":      "5m",

	"messaging.redis_stream.max_len":                  10000,
	"messaging.redis_stream.consumer_group_prefix":    "spec-forge",
	"messaging.redis_stream.block_timeout":            "5s",
	"messaging.redis_stream.claim_interval":           "30s",
	"messaging.redis_stream.retry_limit":              3,
	"messaging.redis_stream.retry_backoff.initial":    "1s",
	"messaging.redis_stream.retry_backoff.max":        "60s",
	"messaging.redis_stream.retry_backoff.multiplier": 2.0,

	"observability.logging.level":       "info",
	"observability.logging.format":      "json",
	"observability.logging.output":      "stdout",
	"observability.tracing.enabled":     false,
	"observability.tracing.exporter":    "otlp",
	"observability.tracing.endpoint":    "localhost:4317",
	"observability.tracing.sample_rate": 1.0,
	"observability.metrics.enabled":     true,
	"observability.metrics.port":        9464,
	"observability.metrics.path":        "/metrics",

	"security.jwt.issuer":                        "spec-forge",
	"security.jwt.expiration":                    "24h",
	"security.auth.enabled":                      true,
	"security.auth.dev_user_header":              "X-User-ID",
	"security.rate_limit.enabled":                true,
	"security.rate_limit.requests_per_second":    100,
	"security.rate_limit.burst":                  200,
	"security.rate_limit.ai_requests_per_minute": 20,

	"features.auto_generate": false,
	"features.notifications": true,
}
