package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"safeflag/internal/model"
	"safeflag/internal/repository"

	"gorm.io/gorm"
)

const (
	DefaultHistoryLimit = 30
	MaxHistoryLimit     = 200
)

// AuditLedger is the append-only record of every state-changing attempt.
type AuditLedger struct {
	repo     repository.AuditInterface
	cache    ReadCacheStore
	cacheTTL time.Duration
}

func NewAuditLedger(repo repository.AuditInterface, cache ReadCacheStore, cacheTTL time.Duration) *AuditLedger {
	if cache == nil {
		cache = NewNoopReadCacheStore()
	}
	return &AuditLedger{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

// Append writes entry through tx when given, so it commits or rolls back with
// the caller's other writes. Call Invalidate once tx has committed.
func (l *AuditLedger) Append(ctx context.Context, tx *gorm.DB, entry *model.AuditEntry) error {
	if entry.TraceID == "" {
		entry.TraceID = GetTraceID(ctx)
	}
	if entry.Operator == "" {
		entry.Operator = GetOperator(ctx)
	}

	repo := l.repo
	if tx != nil {
		repo = l.repo.WithTx(tx)
	}
	if err := repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	if tx == nil {
		l.Invalidate(ctx)
	}
	return nil
}

func (l *AuditLedger) Invalidate(ctx context.Context) {
	invalidate(ctx, l.cache, cacheGroupAudit)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Recent returns the newest entries first.
func (l *AuditLedger) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	limit = clampLimit(limit)
	key := cacheKey(cacheGroupAudit, "recent:"+strconv.Itoa(limit))
	return cachedRead(ctx, l.cache, key, l.cacheTTL, func() ([]model.AuditEntry, error) {
		entries, err := l.repo.Recent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load audit history: %w", err)
		}
		return entries, nil
	})
}

// ForFlag returns the newest entries of one flag.
func (l *AuditLedger) ForFlag(ctx context.Context, flagID uint64, limit int) ([]model.AuditEntry, error) {
	limit = clampLimit(limit)
	key := cacheKey(cacheGroupAudit, fmt.Sprintf("flag:%d:%d", flagID, limit))
	return cachedRead(ctx, l.cache, key, l.cacheTTL, func() ([]model.AuditEntry, error) {
		entries, err := l.repo.ListByFlag(ctx, flagID, limit)
		if err != nil {
			return nil, fmt.Errorf("load flag audit history: %w", err)
		}
		return entries, nil
	})
}
