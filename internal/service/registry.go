package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safeflag/internal/dto/resp"
	"safeflag/internal/model"
	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateFlagInput struct {
	Name        string
	Key         string
	Description string
}

// FlagRegistry owns flag definitions and their per-environment statuses.
type FlagRegistry struct {
	db       *gorm.DB
	flags    repository.FlagInterface
	envs     repository.EnvironmentInterface
	statuses repository.StatusInterface
	outbox   repository.OutboxInterface
	ledger   *AuditLedger
}

func NewFlagRegistry(db *gorm.DB, flags repository.FlagInterface, envs repository.EnvironmentInterface, statuses repository.StatusInterface, outbox repository.OutboxInterface, ledger *AuditLedger) *FlagRegistry {
	return &FlagRegistry{
		db:       db,
		flags:    flags,
		envs:     envs,
		statuses: statuses,
		outbox:   outbox,
		ledger:   ledger,
	}
}

func (r *FlagRegistry) List(ctx context.Context) ([]resp.FlagItem, error) {
	flags, err := r.flags.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	items := make([]resp.FlagItem, 0, len(flags))
	for _, f := range flags {
		items = append(items, resp.NewFlagItem(f))
	}
	return items, nil
}

func (r *FlagRegistry) Environments(ctx context.Context) ([]model.Environment, error) {
	envs, err := r.envs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list environments: %w", err)
	}
	return envs, nil
}

// Create defines a new flag, disabled in every environment.
func (r *FlagRegistry) Create(ctx context.Context, in CreateFlagInput) (*resp.FlagItem, error) {
	in.Key = strings.ToLower(strings.TrimSpace(in.Key))
	in.Name = strings.TrimSpace(in.Name)

	var created *model.Flag
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txFlags := r.flags.WithTx(tx)

		if _, err := txFlags.FindByKey(ctx, in.Key); err == nil {
			return ErrConflict
		} else if !errors.Is(err, repository.ErrFlagNotFound) {
			return err
		}

		flag := &model.Flag{Name: in.Name, Key: in.Key, Description: in.Description}
		if err := txFlags.Create(ctx, flag); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return err
		}

		envs, err := r.envs.WithTx(tx).List(ctx)
		if err != nil {
			return err
		}
		statuses := make([]model.FlagStatus, 0, len(envs))
		for _, env := range envs {
			statuses = append(statuses, model.FlagStatus{FlagID: flag.ID, EnvironmentID: env.ID})
		}
		if err := r.statuses.WithTx(tx).CreateBatch(ctx, statuses); err != nil {
			return err
		}
		for i := range statuses {
			statuses[i].Environment = envs[i]
		}
		flag.Statuses = statuses

		if err := r.ledger.Append(ctx, tx, &model.AuditEntry{
			FlagID: flag.ID,
			Action: model.ActionFlagCreated,
			Reason: fmt.Sprintf("flag %s defined", flag.Key),
		}); err != nil {
			return err
		}

		for _, s := range statuses {
			state := v1.FlagState{Key: flag.Key, Env: s.Environment.Name, Enabled: s.IsEnabled, Version: s.Version}
			if err := enqueueState(ctx, r.outbox, tx, state); err != nil {
				return err
			}
		}
		created = flag
		return nil
	})

	if errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("flag key %q: %w", in.Key, ErrConflict)
	}
	if err != nil {
		logger.Error("failed to create flag", zap.String("key", in.Key), zap.Error(err))
		return nil, fmt.Errorf("create flag: %w", ErrPersistence)
	}

	r.ledger.Invalidate(ctx)
	logger.Info("flag created", zap.String("key", created.Key), zap.Int("environments", len(created.Statuses)))
	item := resp.NewFlagItem(*created)
	return &item, nil
}
