package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/pkg/utils"
)

func newTokenCommand() *cobra.Command {
	var (
		role       string
		ttl        time.Duration
		refreshTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access/refresh token pair for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			if cfg.Security.JWT.Secret == "" {
				return errors.New("security.jwt.secret is not configured")
			}
			r := entity.UserRole(role)
			if r != entity.UserRoleAdmin && r != entity.UserRoleMember {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWT.Expiration
			}

			m := utils.NewJWTManager(cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer)
			pair, err := m.GenerateTokenPair(args[0], role, ttl, refreshTTL)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"user_id":       args[0],
				"role":          role,
				"access_token":  pair.AccessToken,
				"refresh_token": pair.RefreshToken,
				"expires_at":    time.Now().Add(ttl).UTC(),
			})
		},
	}

	cmd.Flags().StringVar(&role, "role", string(entity.UserRoleMember), "Role claim: admin or member")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Access token lifetime (defaults to security.jwt.expiration)")
	cmd.Flags().DurationVar(&refreshTTL, "refresh-ttl", 7*24*time.Hour, "Refresh token lifetime")
	return cmd
}
