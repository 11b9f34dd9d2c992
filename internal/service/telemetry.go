package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"safeflag/internal/dto/resp"
	"safeflag/internal/model"
	"safeflag/internal/repository"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
)

const defaultBlastRadiusWindow = 24 * time.Hour

// TelemetryStore records flag evaluations and answers traffic questions about them.
type TelemetryStore struct {
	flags    repository.FlagInterface
	evals    repository.EvaluationInterface
	cache    ReadCacheStore
	cacheTTL time.Duration
	window   time.Duration
	now      func() time.Time
}

func NewTelemetryStore(flags repository.FlagInterface, evals repository.EvaluationInterface, cache ReadCacheStore, cacheTTL, window time.Duration) *TelemetryStore {
	if cache == nil {
		cache = NewNoopReadCacheStore()
	}
	if window <= 0 {
		window = defaultBlastRadiusWindow
	}
	return &TelemetryStore{
		flags:    flags,
		evals:    evals,
		cache:    cache,
		cacheTTL: cacheTTL,
		window:   window,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for windowing tests.
func (s *TelemetryStore) WithClock(now func() time.Time) *TelemetryStore {
	s.now = now
	return s
}

// RecordHit appends one evaluation of flagKey in envName. It returns false only
// when the key does not exist. Storage failures are logged and swallowed.
func (s *TelemetryStore) RecordHit(ctx context.Context, flagKey, envName string) bool {
	flag, err := s.flags.FindByKey(ctx, flagKey)
	if errors.Is(err, repository.ErrFlagNotFound) {
		return false
	}
	if err != nil {
		logger.Error("telemetry lookup failed", zap.String("key", flagKey), zap.Error(err))
		return true
	}

	eval := &model.FlagEvaluation{
		FlagID:          flag.ID,
		EnvironmentName: normalizeEnv(envName),
		CreatedAt:       s.now(),
	}
	if err := s.evals.Create(ctx, eval); err != nil {
		logger.Error("telemetry write failed", zap.String("key", flagKey), zap.Error(err))
		return true
	}
	invalidate(ctx, s.cache, cacheGroupAnalytics)
	return true
}

// BlastRadius counts evaluations of flagID in [now-window, now]. An empty envName
// counts every environment; a non-positive window uses the configured one.
func (s *TelemetryStore) BlastRadius(ctx context.Context, flagID uint64, envName string, window time.Duration) (int64, error) {
	if window <= 0 {
		window = s.window
	}
	count, err := s.evals.CountSince(ctx, flagID, envName, s.now().Add(-window))
	if err != nil {
		return 0, fmt.Errorf("count evaluations: %w", err)
	}
	return count, nil
}

// Aggregate returns hit totals for every flag with at least one hit.
func (s *TelemetryStore) Aggregate(ctx context.Context) ([]resp.TrafficStat, error) {
	return cachedRead(ctx, s.cache, cacheKey(cacheGroupAnalytics, "all"), s.cacheTTL, func() ([]resp.TrafficStat, error) {
		hits, err := s.evals.HitsPerFlag(ctx)
		if err != nil {
			return nil, fmt.Errorf("aggregate evaluations: %w", err)
		}
		stats := make([]resp.TrafficStat, 0, len(hits))
		for _, h := range hits {
			stats = append(stats, resp.TrafficStat{Key: h.Key, Hits: h.Hits})
		}
		return stats, nil
	})
}
