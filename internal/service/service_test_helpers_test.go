package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"safeflag/internal/model"
	"safeflag/internal/repository"
	"safeflag/internal/risk"
	"safeflag/pkg/constraints"
	"safeflag/pkg/logger"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	logger.InitLogger("test")
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps sqlite writes serialized and the memory db alive
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := repository.NewEnvironmentRepository(db).EnsureDefaults(context.Background(), constraints.DefaultEnvironments); err != nil {
		t.Fatalf("seed environments: %v", err)
	}
	return db
}

type fixture struct {
	db         *gorm.DB
	flags      *repository.FlagRepository
	envs       *repository.EnvironmentRepository
	statuses   *repository.StatusRepository
	evals      *repository.EvaluationRepository
	audits     *repository.AuditRepository
	outbox     *repository.OutboxRepository
	cache      ReadCacheStore
	ledger     *AuditLedger
	telemetry  *TelemetryStore
	registry   *FlagRegistry
	assessor   *risk.StaticAssessor
	gatekeeper *Gatekeeper
	now        time.Time
}

// newFixture wires the core services over a fresh database. The assessor always
// returns score.
func newFixture(t *testing.T, score int) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		db:       db,
		flags:    repository.NewFlagRepository(db),
		envs:     repository.NewEnvironmentRepository(db),
		statuses: repository.NewStatusRepository(db),
		evals:    repository.NewEvaluationRepository(db),
		audits:   repository.NewAuditRepository(db),
		outbox:   repository.NewOutboxRepository(db),
		cache:    NewInMemoryReadCacheStore(),
		assessor: risk.NewStaticAssessor(score, "static advice"),
		now:      time.Now(),
	}
	f.ledger = NewAuditLedger(f.audits, f.cache, time.Minute)
	f.telemetry = NewTelemetryStore(f.flags, f.evals, f.cache, time.Minute, 24*time.Hour).
		WithClock(func() time.Time { return f.now })
	f.registry = NewFlagRegistry(db, f.flags, f.envs, f.statuses, f.outbox, f.ledger)
	f.gatekeeper = NewGatekeeper(db, f.flags, f.envs, f.statuses, f.outbox, f.ledger, f.telemetry, f.assessor, nil)
	return f
}

func (f *fixture) createFlag(t *testing.T, key, description string) uint64 {
	t.Helper()
	item, err := f.registry.Create(context.Background(), CreateFlagInput{Name: "Flag " + key, Key: key, Description: description})
	if err != nil {
		t.Fatalf("create flag %s: %v", key, err)
	}
	return item.ID
}

func (f *fixture) envID(t *testing.T, name string) uint64 {
	t.Helper()
	env, err := f.envs.FindByName(context.Background(), name)
	if err != nil {
		t.Fatalf("find env %s: %v", name, err)
	}
	return env.ID
}

func (f *fixture) status(t *testing.T, flagID, envID uint64) model.FlagStatus {
	t.Helper()
	var s model.FlagStatus
	if err := f.db.Where("flag_id = ? AND environment_id = ?", flagID, envID).First(&s).Error; err != nil {
		t.Fatalf("load status: %v", err)
	}
	return s
}

func (f *fixture) hits(t *testing.T, key, env string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !f.telemetry.RecordHit(context.Background(), key, env) {
			t.Fatalf("hit on %s rejected", key)
		}
	}
}

func (f *fixture) auditCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&model.AuditEntry{}).Count(&n).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}

var (
	developer = Caller{ID: "2", Name: "dev@safeconfig.ai", Role: constraints.RoleDeveloper}
	manager   = Caller{ID: "1", Name: "manager@safeconfig.ai", Role: constraints.RoleManager}
)
