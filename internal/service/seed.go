package service

import (
	"context"
	"errors"
	"fmt"

	"safeflag/internal/repository"
	"safeflag/pkg/constraints"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
)

const demoPassword = "password123"

var demoUsers = []RegisterInput{
	{Email: "manager@safeconfig.ai", Password: demoPassword, Role: constraints.RoleManager},
	{Email: "dev@safeconfig.ai", Password: demoPassword, Role: constraints.RoleDeveloper},
}

// Seed makes sure the default environments exist and, when withUsers is set,
// registers the demo accounts on an empty users table. Safe to run on every start.
func Seed(ctx context.Context, envs repository.EnvironmentInterface, users repository.UserInterface, auth *AuthService, withUsers bool) error {
	if err := envs.EnsureDefaults(ctx, constraints.DefaultEnvironments); err != nil {
		return fmt.Errorf("seed environments: %w", err)
	}
	if !withUsers {
		return nil
	}

	count, err := users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, u := range demoUsers {
		if _, err := auth.Register(ctx, u); err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("seed user %s: %w", u.Email, err)
		}
	}
	logger.Info("demo users seeded", zap.Int("count", len(demoUsers)))
	return nil
}
