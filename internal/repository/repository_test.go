package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"safeflag/internal/model"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/constraints"

	"gorm.io/gorm"
)

func TestEnvironmentRepository_EnsureDefaultsIsIdempotent(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewEnvironmentRepository(db)
	ctx := context.Background()

	if err := repo.EnsureDefaults(ctx, constraints.DefaultEnvironments); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	envs, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(envs) != 3 {
		t.Fatalf("expected 3 environments, got %d", len(envs))
	}

	prod, err := repo.FindByName(ctx, "production")
	if err != nil {
		t.Fatalf("find by name: %v", err)
	}
	if !prod.IsProduction() {
		t.Errorf("expected %q to be production", prod.Name)
	}
	if _, err := repo.FindByID(ctx, 999); !errors.Is(err, ErrEnvironmentNotFound) {
		t.Errorf("expected ErrEnvironmentNotFound, got %v", err)
	}
}

func TestFlagRepository_ListPreloadsStatuses(t *testing.T) {
	db := newRepositoryDBForTest(t)
	createFlagForTest(t, db, "checkout_v2")
	createFlagForTest(t, db, "search_v3")

	flags, err := NewFlagRepository(db).List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(flags) != 2 {
		t.Fatalf("expected 2 flags, got %d", len(flags))
	}
	for _, f := range flags {
		if len(f.Statuses) != 3 {
			t.Fatalf("flag %s: expected 3 statuses, got %d", f.Key, len(f.Statuses))
		}
		for _, s := range f.Statuses {
			if s.IsEnabled {
				t.Errorf("flag %s env %d: expected disabled", f.Key, s.EnvironmentID)
			}
			if s.Environment.Name == "" {
				t.Errorf("flag %s: environment not preloaded", f.Key)
			}
		}
	}

	got, err := NewFlagRepository(db).FindByKey(context.Background(), "search_v3")
	if err != nil || got.Key != "search_v3" {
		t.Fatalf("find by key: %+v %v", got, err)
	}
	if _, err := NewFlagRepository(db).FindByKey(context.Background(), "missing"); !errors.Is(err, ErrFlagNotFound) {
		t.Errorf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestFlagRepository_DuplicateKeyIsTranslated(t *testing.T) {
	db := newRepositoryDBForTest(t)
	createFlagForTest(t, db, "dup_key")

	err := NewFlagRepository(db).Create(context.Background(), &model.Flag{Name: "again", Key: "dup_key"})
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected gorm.ErrDuplicatedKey, got %v", err)
	}
}

func TestStatusRepository_CompareAndSwap(t *testing.T) {
	db := newRepositoryDBForTest(t)
	flag := createFlagForTest(t, db, "cas_flag")
	repo := NewStatusRepository(db)
	ctx := context.Background()

	var status *model.FlagStatus
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		status, err = repo.WithTx(tx).LockForUpdate(ctx, flag.ID, 1)
		if err != nil {
			return err
		}
		return repo.WithTx(tx).CompareAndSwap(ctx, status, true)
	})
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if !status.IsEnabled || status.Version != 1 {
		t.Fatalf("expected enabled version 1, got %+v", status)
	}

	stale := &model.FlagStatus{ID: status.ID, Version: 0}
	if err := repo.CompareAndSwap(ctx, stale, false); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus for stale version, got %v", err)
	}

	if _, err := repo.LockForUpdate(ctx, flag.ID, 999); !errors.Is(err, ErrStatusNotFound) {
		t.Errorf("expected ErrStatusNotFound, got %v", err)
	}
}

func TestEvaluationRepository_CountSinceAndHitsPerFlag(t *testing.T) {
	db := newRepositoryDBForTest(t)
	a := createFlagForTest(t, db, "flag_a")
	b := createFlagForTest(t, db, "flag_b")
	repo := NewEvaluationRepository(db)
	ctx := context.Background()
	now := time.Now()

	evals := []model.FlagEvaluation{
		{FlagID: a.ID, EnvironmentName: "Production", CreatedAt: now.Add(-time.Hour)},
		{FlagID: a.ID, EnvironmentName: "Production", CreatedAt: now.Add(-2 * time.Hour)},
		{FlagID: a.ID, EnvironmentName: "Staging", CreatedAt: now.Add(-time.Hour)},
		{FlagID: a.ID, EnvironmentName: "Production", CreatedAt: now.Add(-48 * time.Hour)},
		{FlagID: b.ID, EnvironmentName: "Production", CreatedAt: now.Add(-time.Minute)},
	}
	for i := range evals {
		if err := repo.Create(ctx, &evals[i]); err != nil {
			t.Fatalf("create eval: %v", err)
		}
	}

	since := now.Add(-24 * time.Hour)
	tests := []struct {
		name string
		flag uint64
		env  string
		want int64
	}{
		{"production only", a.ID, "Production", 2},
		{"case insensitive env", a.ID, "production", 2},
		{"all environments", a.ID, "", 3},
		{"other flag", b.ID, "Production", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.CountSince(ctx, tt.flag, tt.env, since)
			if err != nil {
				t.Fatalf("count: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}

	hits, err := repo.HitsPerFlag(ctx)
	if err != nil {
		t.Fatalf("hits per flag: %v", err)
	}
	if len(hits) != 2 || hits[0].Key != "flag_a" || hits[0].Hits != 4 || hits[1].Hits != 1 {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestAuditRepository_RecentIsNewestFirst(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewAuditRepository(db)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, action := range []string{model.ActionToggleOn, model.ActionToggleOff, model.ActionAIBlock} {
		entry := &model.AuditEntry{
			FlagID:    1,
			EnvName:   "Production",
			Action:    action,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if action == model.ActionAIBlock {
			entry.RiskReport = &v1.RiskReport{RiskScore: 9, RiskLevel: v1.RiskHigh, Advice: "no"}
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	entries, err := repo.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != model.ActionAIBlock || entries[1].Action != model.ActionToggleOff {
		t.Fatalf("unexpected order: %s, %s", entries[0].Action, entries[1].Action)
	}
	if entries[0].RiskReport == nil || entries[0].RiskReport.RiskScore != 9 {
		t.Fatalf("risk report not round-tripped: %+v", entries[0].RiskReport)
	}
	if entries[1].RiskReport != nil {
		t.Fatalf("expected nil risk report, got %+v", entries[1].RiskReport)
	}

	byFlag, err := repo.ListByFlag(ctx, 1, 10)
	if err != nil || len(byFlag) != 3 {
		t.Fatalf("list by flag: %d %v", len(byFlag), err)
	}
	if err := repo.PingContext(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSDKKeyRepository_Validate(t *testing.T) {
	db := newRepositoryDBForTest(t)
	repo := NewSDKKeyRepository(db)
	ctx := context.Background()

	if err := repo.Create(ctx, &model.SDKClient{AppID: "web", APIKey: "k-1", Env: "Production", Status: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := repo.ValidateAPIKey(ctx, "k-1", "production")
	if err != nil || !ok {
		t.Fatalf("expected valid key, got %v %v", ok, err)
	}
	ok, err = repo.ValidateAPIKey(ctx, "k-1", "Staging")
	if err != nil || ok {
		t.Fatalf("expected key rejected for other env, got %v %v", ok, err)
	}
}
