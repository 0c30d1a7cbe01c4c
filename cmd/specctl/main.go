// Package main specctl 运维命令行：迁移、签发令牌、查询滞留项目
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"spec-forge-api/internal/application/lifecycle"
	"spec-forge-api/internal/config"
	"spec-forge-api/internal/wire"
	"spec-forge-api/pkg/logger"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "specctl",
		Short:   "Operate a spec-forge deployment",
		Long:    "specctl talks to the configured database directly. Output is JSON.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := logger.Setup(logger.Config(cfg.Observability.Logging)); err != nil {
				return err
			}
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
		SilenceUsage: true,
	}

	root.AddCommand(newMigrateCommand())
	root.AddCommand(newTokenCommand())
	root.AddCommand(newStaleCommand())
	root.AddCommand(newStatusCommand())
	return root
}

type configKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey{}, cfg)
}

func configFrom(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(configKey{}).(*config.Config)
	return cfg
}

// openController 只依赖数据层，供查询类子命令使用
func openController(cmd *cobra.Command) (*lifecycle.Controller, func(), error) {
	cfg := configFrom(cmd)
	data, cleanup, err := wire.InitializeDataLayer(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init data layer: %w", err)
	}
	return lifecycle.NewController(data.Repos, nil, nil, nil, cfg), cleanup, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
