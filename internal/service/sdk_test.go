package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"safeflag/internal/repository"
)

func TestSDKKeyService_Mint(t *testing.T) {
	db := newTestDB(t)
	keys := repository.NewSDKKeyRepository(db)
	svc := NewSDKKeyService(keys, repository.NewEnvironmentRepository(db))
	ctx := context.Background()

	item, err := svc.Mint(ctx, "web-shop", "production", "manager@safeconfig.ai")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !strings.HasPrefix(item.APIKey, "sf_") || len(item.APIKey) != 35 {
		t.Errorf("unexpected key format %q", item.APIKey)
	}
	if item.Env != "Production" || item.CreatedBy != "manager@safeconfig.ai" {
		t.Errorf("unexpected item: %+v", item)
	}

	ok, err := keys.ValidateAPIKey(ctx, item.APIKey, "Production")
	if err != nil || !ok {
		t.Errorf("minted key does not validate: %v %v", ok, err)
	}

	if _, err := svc.Mint(ctx, "web-shop", "qa", "m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown env err = %v, want ErrNotFound", err)
	}
}
