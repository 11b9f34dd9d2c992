package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safeflag/internal/dto/resp"
	"safeflag/internal/model"
	"safeflag/internal/repository"

	"github.com/google/uuid"
)

// SDKKeyService mints API keys that SDK clients use on the stream endpoints.
type SDKKeyService struct {
	keys repository.SDKRepository
	envs repository.EnvironmentInterface
}

func NewSDKKeyService(keys repository.SDKRepository, envs repository.EnvironmentInterface) *SDKKeyService {
	return &SDKKeyService{keys: keys, envs: envs}
}

func (s *SDKKeyService) Mint(ctx context.Context, appID, envName, operator string) (*resp.SDKKeyItem, error) {
	env, err := s.envs.FindByName(ctx, envName)
	if errors.Is(err, repository.ErrEnvironmentNotFound) {
		return nil, fmt.Errorf("environment %s: %w", envName, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load environment %s: %w", envName, ErrPersistence)
	}
	client := &model.SDKClient{
		AppID:     strings.TrimSpace(appID),
		APIKey:    "sf_" + strings.ReplaceAll(uuid.New().String(), "-", ""),
		Env:       env.Name,
		Status:    1,
		CreatedBy: operator,
	}
	if err := s.keys.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("store sdk key: %w", ErrPersistence)
	}
	return &resp.SDKKeyItem{
		AppID:     client.AppID,
		APIKey:    client.APIKey,
		Env:       client.Env,
		CreatedBy: client.CreatedBy,
		CreatedAt: client.CreatedAt,
	}, nil
}
