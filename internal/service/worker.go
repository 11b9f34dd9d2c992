package service

import (
	"context"
	"encoding/json"
	"time"

	"safeflag/internal/model"
	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
)

const outboxBatchSize = 50

// OutboxWorker publishes committed state changes recorded in the outbox.
type OutboxWorker struct {
	outboxRepo repository.OutboxInterface
	publisher  StatePublisher
	interval   time.Duration
}

func NewOutboxWorker(outboxRepo repository.OutboxInterface, publisher StatePublisher, interval time.Duration) *OutboxWorker {
	return &OutboxWorker{
		outboxRepo: outboxRepo,
		publisher:  publisher,
		interval:   interval,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	logger.Info("outbox worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *OutboxWorker) processPending(ctx context.Context) {
	tasks, err := w.outboxRepo.FetchPending(ctx, outboxBatchSize)
	if err != nil {
		logger.Error("failed to fetch pending outbox tasks", zap.Error(err))
		return
	}

	for _, task := range tasks {
		var state v1.FlagState
		if err := json.Unmarshal([]byte(task.Payload), &state); err != nil {
			logger.Error("corrupt outbox payload", zap.Int64("id", task.ID), zap.Error(err))
			w.mark(ctx, task.ID, model.StatusFailed, task.RetryCount)
			continue
		}

		if _, err := w.publisher.SaveStateIfNewer(ctx, state); err != nil {
			retries := task.RetryCount + 1
			logger.Warn("failed to publish flag state",
				zap.Int64("id", task.ID),
				zap.String("key", task.Key),
				zap.Int("retry", retries),
				zap.Error(err))
			if retries >= model.MaxOutboxRetries {
				logger.Error("outbox task gave up", zap.Int64("id", task.ID), zap.String("key", task.Key))
				w.mark(ctx, task.ID, model.StatusFailed, retries)
			} else {
				w.mark(ctx, task.ID, model.StatusPending, retries)
			}
			continue
		}

		w.mark(ctx, task.ID, model.StatusCompleted, task.RetryCount)
		logger.Debug("flag state published", zap.Int64("id", task.ID), zap.String("key", task.Key), zap.Int("version", state.Version))
	}
}

func (w *OutboxWorker) mark(ctx context.Context, id int64, status, retries int) {
	if err := w.outboxRepo.UpdateStatus(ctx, id, status, retries); err != nil {
		logger.Error("failed to update outbox task", zap.Int64("id", id), zap.Int("status", status), zap.Error(err))
	}
}
