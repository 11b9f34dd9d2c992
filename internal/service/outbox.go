package service

import (
	"context"
	"fmt"

	"safeflag/internal/model"
	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"

	"gorm.io/gorm"
)

// enqueueState records a pending publication of state inside tx. A nil outbox
// means state distribution is disabled.
func enqueueState(ctx context.Context, outbox repository.OutboxInterface, tx *gorm.DB, state v1.FlagState) error {
	if outbox == nil {
		return nil
	}
	task := &model.OutboxTask{
		Key:     repository.BuildStateKey(state.Env, state.Key),
		Payload: state.ToJSON(),
		Status:  model.StatusPending,
		TraceID: GetTraceID(ctx),
	}
	if err := outbox.WithTx(tx).Create(ctx, task); err != nil {
		return fmt.Errorf("enqueue state %s: %w", task.Key, err)
	}
	return nil
}
