// Package postgres 提供 PostgreSQL 数据库访问层实现
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"spec-forge-api/internal/config"
	"spec-forge-api/pkg/logger"
	"spec-forge-api/pkg/metrics"
)

var tracer = otel.Tracer("postgres")

const (
	applicationName = "spec-forge-api"
	slowQuery       = 500 * time.Millisecond
	pingTimeout     = 5 * time.Second
)

// Client 持久化网关使用的 GORM 连接
type Client struct {
	db     *gorm.DB
	config *config.PostgresConfig
}

// DSN 构造 libpq URL；密码等字段做转义
func DSN(cfg *config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}
	q := url.Values{}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	q.Set("application_name", applicationName)
	u.RawQuery = q.Encode()
	return u.String()
}

// NewClient 打开连接、配置连接池，并按配置执行自动迁移
func NewClient(cfg *config.PostgresConfig) (*Client, error) {
	db, err := gorm.Open(postgres.Open(DSN(cfg)), &gorm.Config{
		Logger: gormlogger.New(slogWriter{}, gormlogger.Config{
			SlowThreshold:             slowQuery,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Database, err)
	}
	if err := metrics.RegisterDBStats(sqlDB, cfg.Database); err != nil {
		logger.Warn(ctx, "failed to register db stats collector", "error", err.Error())
	}

	client := &Client{db: db, config: cfg}
	if cfg.AutoMigrate {
		if err := client.Migrate(context.Background()); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
	}
	return client, nil
}

// Close 关闭数据库连接
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck 执行 SELECT 1，并把连接池使用情况记到 span 上
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "postgres.HealthCheck")
	defer span.End()

	if sqlDB, err := c.db.DB(); err == nil {
		stats := sqlDB.Stats()
		span.SetAttributes(
			attribute.Int("db.pool.open", stats.OpenConnections),
			attribute.Int("db.pool.in_use", stats.InUse),
			attribute.Int64("db.pool.wait_count", stats.WaitCount),
		)
	}

	var result int
	if err := c.db.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

// slogWriter 把 GORM 的慢查询与错误日志转到 slog
type slogWriter struct{}

func (slogWriter) Printf(format string, args ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	logger.Warn(context.Background(), "gorm", "detail", msg)
}
