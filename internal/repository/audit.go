package repository

import (
	"context"
	"safeflag/internal/model"

	"gorm.io/gorm"
)

// AuditInterface defines the interface for audit ledger persistence
type AuditInterface interface {
	Create(ctx context.Context, entry *model.AuditEntry) error
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
	ListByFlag(ctx context.Context, flagID uint64, limit int) ([]model.AuditEntry, error)
	PingContext(ctx context.Context) error
	WithTx(tx *gorm.DB) AuditInterface
}

// AuditRepository is append-only: there is no update or delete.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(ctx context.Context, entry *model.AuditEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// Recent returns the newest entries first. id breaks ties between rows written in the same instant.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) ListByFlag(ctx context.Context, flagID uint64, limit int) ([]model.AuditEntry, error) {
	var entries []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("flag_id = ?", flagID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *AuditRepository) WithTx(tx *gorm.DB) AuditInterface {
	return &AuditRepository{db: tx}
}

func (r *AuditRepository) PingContext(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
