package service

import (
	"context"
	"errors"
	"testing"

	"safeflag/internal/model"
)

func TestFlagRegistry_CreateInitializesEveryEnvironment(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	item, err := f.registry.Create(ctx, CreateFlagInput{Name: " Checkout ", Key: "Checkout_V2", Description: "minor css change"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Key != "checkout_v2" || item.Name != "Checkout" {
		t.Errorf("unexpected item: %+v", item)
	}
	if len(item.Statuses) != 3 {
		t.Fatalf("statuses = %d, want 3", len(item.Statuses))
	}
	names := map[string]bool{}
	for _, s := range item.Statuses {
		names[s.EnvironmentName] = true
		if s.IsEnabled || s.Version != 0 {
			t.Errorf("status %s not initial: %+v", s.EnvironmentName, s)
		}
	}
	for _, env := range []string{"Development", "Staging", "Production"} {
		if !names[env] {
			t.Errorf("missing status for %s", env)
		}
	}

	var created []model.AuditEntry
	f.db.Where("action = ?", model.ActionFlagCreated).Find(&created)
	if len(created) != 1 || created[0].FlagID != item.ID || created[0].Operator != "system" {
		t.Errorf("unexpected creation entries: %+v", created)
	}
	tasks, _ := f.outbox.FetchPending(ctx, 10)
	if len(tasks) != 3 {
		t.Errorf("outbox tasks = %d, want 3", len(tasks))
	}
}

func TestFlagRegistry_DuplicateKeyConflicts(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.createFlag(t, "dup_key", "")

	_, err := f.registry.Create(ctx, CreateFlagInput{Name: "Again", Key: "dup_key"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	var flags, statuses int64
	f.db.Model(&model.Flag{}).Count(&flags)
	f.db.Model(&model.FlagStatus{}).Count(&statuses)
	if flags != 1 || statuses != 3 {
		t.Errorf("conflict left partial rows: flags=%d statuses=%d", flags, statuses)
	}
}

func TestFlagRegistry_CreateRecordsOperator(t *testing.T) {
	f := newFixture(t, 1)
	ctx := WithTraceID(WithOperator(context.Background(), &OperatorInfo{UserID: "1", Name: "manager@safeconfig.ai"}), "trace-1")

	item, err := f.registry.Create(ctx, CreateFlagInput{Name: "Search", Key: "search"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	entries, err := f.ledger.ForFlag(ctx, item.ID, 10)
	if err != nil {
		t.Fatalf("for flag: %v", err)
	}
	if len(entries) != 1 || entries[0].Operator != "manager@safeconfig.ai" || entries[0].TraceID != "trace-1" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestFlagRegistry_ListAndEnvironments(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	items, err := f.registry.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("expected empty non-nil list, got %v", items)
	}

	f.createFlag(t, "first", "")
	f.createFlag(t, "second", "")
	items, _ = f.registry.List(ctx)
	if len(items) != 2 || items[0].Key != "first" || items[1].Key != "second" {
		t.Errorf("unexpected order: %+v", items)
	}

	envs, err := f.registry.Environments(ctx)
	if err != nil {
		t.Fatalf("environments: %v", err)
	}
	if len(envs) != 3 {
		t.Errorf("environments = %d, want 3", len(envs))
	}
}
