package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"safeflag/internal/model"
	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []v1.FlagState
	failures  int
}

func (p *fakePublisher) SaveStateIfNewer(_ context.Context, state v1.FlagState) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return 0, errors.New("etcd unavailable")
	}
	p.published = append(p.published, state)
	return int64(len(p.published)), nil
}

func outboxTask(t *testing.T, db *repository.OutboxRepository, payload string) {
	t.Helper()
	if err := db.Create(context.Background(), &model.OutboxTask{Key: "k", Payload: payload, Status: model.StatusPending}); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func TestOutboxWorker_PublishesPendingStates(t *testing.T) {
	outbox := repository.NewOutboxRepository(newTestDB(t))
	pub := &fakePublisher{}
	worker := NewOutboxWorker(outbox, pub, 0)

	outboxTask(t, outbox, v1.FlagState{Key: "a", Env: "Production", Enabled: true, Version: 1}.ToJSON())
	outboxTask(t, outbox, v1.FlagState{Key: "b", Env: "Staging", Version: 2}.ToJSON())

	worker.processPending(context.Background())

	if len(pub.published) != 2 || pub.published[0].Key != "a" || pub.published[1].Version != 2 {
		t.Fatalf("unexpected published states: %+v", pub.published)
	}
	pending, _ := outbox.FetchPending(context.Background(), 10)
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestOutboxWorker_RetriesThenGivesUp(t *testing.T) {
	db := newTestDB(t)
	outbox := repository.NewOutboxRepository(db)
	pub := &fakePublisher{failures: model.MaxOutboxRetries}
	worker := NewOutboxWorker(outbox, pub, 0)
	outboxTask(t, outbox, v1.FlagState{Key: "flaky", Env: "Production"}.ToJSON())

	for i := 0; i < model.MaxOutboxRetries; i++ {
		worker.processPending(context.Background())
	}

	var task model.OutboxTask
	db.First(&task)
	if task.Status != model.StatusFailed || task.RetryCount != model.MaxOutboxRetries {
		t.Fatalf("task = %+v, want failed after %d retries", task, model.MaxOutboxRetries)
	}
	if len(pub.published) != 0 {
		t.Errorf("nothing should have been published")
	}
}

func TestOutboxWorker_CorruptPayloadFails(t *testing.T) {
	db := newTestDB(t)
	outbox := repository.NewOutboxRepository(db)
	worker := NewOutboxWorker(outbox, &fakePublisher{}, 0)
	outboxTask(t, outbox, "{not json")

	worker.processPending(context.Background())

	var task model.OutboxTask
	db.First(&task)
	if task.Status != model.StatusFailed {
		t.Errorf("status = %d, want failed", task.Status)
	}
}
