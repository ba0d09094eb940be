package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/JuhanV/Sleep-Game/internal/config"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// Execer runs a statement. *pgxpool.Pool implements it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AdminPromoter flags profiles as admin by email.
type AdminPromoter interface {
	PromoteByEmail(ctx context.Context, email string) (int64, error)
}

// EnsureSchema creates missing tables at startup.
func EnsureSchema(lc fx.Lifecycle, pool *pgxpool.Pool, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return applySchema(ctx, pool, logger)
		},
	})
}

// EnsureAdmin promotes the profile registered with ADMIN_EMAIL, if any.
// It must be invoked after EnsureSchema.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, profiles repository.ProfileRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, profiles, logger)
		},
	})
}

func applySchema(ctx context.Context, db Execer, logger *zap.Logger) error {
	if _, err := db.Exec(ctx, repository.Schema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	if logger != nil {
		logger.Info("bootstrap schema applied")
	}
	return nil
}

func ensureAdmin(ctx context.Context, cfg config.Config, profiles AdminPromoter, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		return nil
	}

	promoted, err := profiles.PromoteByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("bootstrap promote admin: %w", err)
	}

	if logger != nil && promoted > 0 {
		logger.Info("bootstrap admin promoted",
			zap.String("email", email),
			zap.Int64("profiles", promoted),
		)
	}
	return nil
}
