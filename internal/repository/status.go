package repository

import (
	"context"
	"errors"
	"safeflag/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrStatusNotFound = errors.New("flag status not found")
	ErrStaleStatus    = errors.New("flag status changed concurrently")
)

// StatusInterface defines persistence for per-environment flag state
type StatusInterface interface {
	CreateBatch(ctx context.Context, statuses []model.FlagStatus) error
	LockForUpdate(ctx context.Context, flagID, envID uint64) (*model.FlagStatus, error)
	CompareAndSwap(ctx context.Context, status *model.FlagStatus, enabled bool) error
	ListAll(ctx context.Context) ([]model.FlagStatus, error)
	WithTx(tx *gorm.DB) StatusInterface
}

type StatusRepository struct {
	db *gorm.DB
}

func NewStatusRepository(db *gorm.DB) *StatusRepository {
	return &StatusRepository{db: db}
}

func (r *StatusRepository) CreateBatch(ctx context.Context, statuses []model.FlagStatus) error {
	if len(statuses) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit("Environment").Create(&statuses).Error
}

// LockForUpdate reads the status row with SELECT ... FOR UPDATE. Must run inside a transaction;
// dialects without row locks (sqlite) drop the clause.
func (r *StatusRepository) LockForUpdate(ctx context.Context, flagID, envID uint64) (*model.FlagStatus, error) {
	var status model.FlagStatus
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("flag_id = ? AND environment_id = ?", flagID, envID).
		First(&status).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	return &status, nil
}

// CompareAndSwap writes the new enabled bit only if the row still carries the version that was read.
// On success the passed status is updated in place.
func (r *StatusRepository) CompareAndSwap(ctx context.Context, status *model.FlagStatus, enabled bool) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&model.FlagStatus{}).
		Where("id = ? AND version = ?", status.ID, status.Version).
		Updates(map[string]any{
			"is_enabled": enabled,
			"version":    status.Version + 1,
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleStatus
	}
	status.IsEnabled = enabled
	status.Version++
	status.UpdatedAt = now
	return nil
}

func (r *StatusRepository) ListAll(ctx context.Context) ([]model.FlagStatus, error) {
	var statuses []model.FlagStatus
	err := r.db.WithContext(ctx).Preload("Environment").Order("id ASC").Find(&statuses).Error
	return statuses, err
}

func (r *StatusRepository) WithTx(tx *gorm.DB) StatusInterface {
	return &StatusRepository{db: tx}
}
