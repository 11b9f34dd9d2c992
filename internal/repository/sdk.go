package repository

import (
	"context"
	"errors"
	"safeflag/internal/model"

	"gorm.io/gorm"
)

// SDKRepository defines the interface for SDK Key validation
type SDKRepository interface {
	ValidateAPIKey(ctx context.Context, apiKey, env string) (bool, error)
	Create(ctx context.Context, client *model.SDKClient) error
}

// SDKKeyRepository implementation
type SDKKeyRepository struct {
	db *gorm.DB
}

func NewSDKKeyRepository(db *gorm.DB) *SDKKeyRepository {
	return &SDKKeyRepository{db: db}
}

func (r *SDKKeyRepository) ValidateAPIKey(ctx context.Context, apiKey, env string) (bool, error) {
	var client model.SDKClient
	err := r.db.WithContext(ctx).
		Where("api_key = ? AND LOWER(env) = LOWER(?) AND status = 1", apiKey, env).
		First(&client).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *SDKKeyRepository) Create(ctx context.Context, client *model.SDKClient) error {
	return r.db.WithContext(ctx).Create(client).Error
}
