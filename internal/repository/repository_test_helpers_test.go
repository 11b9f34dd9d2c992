package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"safeflag/internal/model"
	"safeflag/pkg/constraints"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	if err := NewEnvironmentRepository(db).EnsureDefaults(context.Background(), constraints.DefaultEnvironments); err != nil {
		t.Fatalf("seed environments: %v", err)
	}
	return db
}

func createFlagForTest(t *testing.T, db *gorm.DB, key string) *model.Flag {
	t.Helper()
	flag := &model.Flag{Name: key, Key: key}
	if err := NewFlagRepository(db).Create(context.Background(), flag); err != nil {
		t.Fatalf("create flag %s: %v", key, err)
	}
	envs, err := NewEnvironmentRepository(db).List(context.Background())
	if err != nil {
		t.Fatalf("list envs: %v", err)
	}
	statuses := make([]model.FlagStatus, 0, len(envs))
	for _, env := range envs {
		statuses = append(statuses, model.FlagStatus{FlagID: flag.ID, EnvironmentID: env.ID})
	}
	if err := NewStatusRepository(db).CreateBatch(context.Background(), statuses); err != nil {
		t.Fatalf("create statuses: %v", err)
	}
	return flag
}
