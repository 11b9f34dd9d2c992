package repository

import (
	"context"
	"errors"
	"safeflag/internal/model"

	"gorm.io/gorm"
)

var ErrEnvironmentNotFound = errors.New("environment not found")

type EnvironmentInterface interface {
	List(ctx context.Context) ([]model.Environment, error)
	FindByID(ctx context.Context, id uint64) (*model.Environment, error)
	FindByName(ctx context.Context, name string) (*model.Environment, error)
	EnsureDefaults(ctx context.Context, names []string) error
	WithTx(tx *gorm.DB) EnvironmentInterface
}

type EnvironmentRepository struct {
	db *gorm.DB
}

func NewEnvironmentRepository(db *gorm.DB) *EnvironmentRepository {
	return &EnvironmentRepository{db: db}
}

func (r *EnvironmentRepository) List(ctx context.Context) ([]model.Environment, error) {
	var envs []model.Environment
	err := r.db.WithContext(ctx).Order("id ASC").Find(&envs).Error
	return envs, err
}

func (r *EnvironmentRepository) FindByID(ctx context.Context, id uint64) (*model.Environment, error) {
	var env model.Environment
	if err := r.db.WithContext(ctx).First(&env, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnvironmentNotFound
		}
		return nil, err
	}
	return &env, nil
}

func (r *EnvironmentRepository) FindByName(ctx context.Context, name string) (*model.Environment, error) {
	var env model.Environment
	if err := r.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&env).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnvironmentNotFound
		}
		return nil, err
	}
	return &env, nil
}

// EnsureDefaults creates any missing environment by name. Existing rows are left alone.
func (r *EnvironmentRepository) EnsureDefaults(ctx context.Context, names []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range names {
			env := model.Environment{Name: name}
			if err := tx.Where(model.Environment{Name: name}).FirstOrCreate(&env).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *EnvironmentRepository) WithTx(tx *gorm.DB) EnvironmentInterface {
	return &EnvironmentRepository{db: tx}
}
