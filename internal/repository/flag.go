package repository

import (
	"context"
	"errors"
	"safeflag/internal/model"

	"gorm.io/gorm"
)

var ErrFlagNotFound = errors.New("flag not found")

// FlagInterface defines persistence for flag definitions
type FlagInterface interface {
	List(ctx context.Context) ([]model.Flag, error)
	FindByID(ctx context.Context, id uint64) (*model.Flag, error)
	FindByKey(ctx context.Context, key string) (*model.Flag, error)
	Create(ctx context.Context, flag *model.Flag) error
	WithTx(tx *gorm.DB) FlagInterface
}

type FlagRepository struct {
	db *gorm.DB
}

func NewFlagRepository(db *gorm.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// List returns every flag with its statuses and their environments preloaded.
func (r *FlagRepository) List(ctx context.Context) ([]model.Flag, error) {
	var flags []model.Flag
	err := r.db.WithContext(ctx).
		Preload("Statuses", func(db *gorm.DB) *gorm.DB {
			return db.Order("environment_id ASC")
		}).
		Preload("Statuses.Environment").
		Order("id ASC").
		Find(&flags).Error
	return flags, err
}

func (r *FlagRepository) FindByID(ctx context.Context, id uint64) (*model.Flag, error) {
	var flag model.Flag
	if err := r.db.WithContext(ctx).First(&flag, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return &flag, nil
}

func (r *FlagRepository) FindByKey(ctx context.Context, key string) (*model.Flag, error) {
	var flag model.Flag
	if err := r.db.WithContext(ctx).Where(map[string]any{"key": key}).First(&flag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFlagNotFound
		}
		return nil, err
	}
	return &flag, nil
}

func (r *FlagRepository) Create(ctx context.Context, flag *model.Flag) error {
	return r.db.WithContext(ctx).Omit("Statuses", "Evaluations").Create(flag).Error
}

func (r *FlagRepository) WithTx(tx *gorm.DB) FlagInterface {
	return &FlagRepository{db: tx}
}
