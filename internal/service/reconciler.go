package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
	"go.uber.org/zap"
)

const reconcilerLockKey = "/locks/safeflag/reconciler"

type StateStore interface {
	StateSource
	StatePublisher
}

// Reconciler repairs etcd when it drifts from the database. One instance runs at a time.
type Reconciler struct {
	etcdClient *clientv3.Client
	store      StateStore
	flags      repository.FlagInterface
	interval   time.Duration
}

func NewReconciler(client *clientv3.Client, store StateStore, flags repository.FlagInterface, interval time.Duration) *Reconciler {
	return &Reconciler{
		etcdClient: client,
		store:      store,
		flags:      flags,
		interval:   interval,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	session, err := concurrency.NewSession(r.etcdClient, concurrency.WithTTL(10))
	if err != nil {
		logger.Error("failed to create etcd concurrency session", zap.Error(err))
		return
	}
	defer session.Close()

	mutex := concurrency.NewMutex(session, reconcilerLockKey)
	logger.Info("reconciler started", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := mutex.Lock(lockCtx)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					logger.Debug("reconciliation skipped, another instance holds the lock")
				} else {
					logger.Error("failed to acquire reconciliation lock", zap.Error(err))
				}
				continue
			}

			r.reconcile(ctx)

			if err := mutex.Unlock(context.Background()); err != nil {
				logger.Warn("failed to release reconciliation lock", zap.Error(err))
			}
		}
	}
}

// reconcile returns how many keys it repaired.
func (r *Reconciler) reconcile(ctx context.Context) int {
	flags, err := r.flags.List(ctx)
	if err != nil {
		logger.Error("recon: failed to load flags", zap.Error(err))
		return 0
	}
	want := make(map[string]v1.FlagState)
	for _, f := range flags {
		for _, s := range f.Statuses {
			state := v1.FlagState{Key: f.Key, Env: s.Environment.Name, Enabled: s.IsEnabled, Version: s.Version}
			want[repository.BuildStateKey(state.Env, state.Key)] = state
		}
	}

	resp, err := r.store.GetWithRevision(ctx, repository.StateRootPrefix)
	if err != nil {
		logger.Error("recon: failed to load etcd states", zap.Error(err))
		return 0
	}
	have := make(map[string]v1.FlagState, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var state v1.FlagState
		if err := json.Unmarshal(kv.Value, &state); err == nil {
			have[string(kv.Key)] = state
		}
	}

	fixed := 0
	for fullKey, dbState := range want {
		published, exists := have[fullKey]
		reason := ""
		switch {
		case !exists:
			reason = "missing_in_etcd"
		case published.Version < dbState.Version:
			reason = "stale_version"
		case published.Version == dbState.Version && published.Enabled != dbState.Enabled:
			reason = "value_mismatch"
		}
		if reason == "" {
			continue
		}
		logger.Warn("recon: fixing inconsistency", zap.String("key", fullKey), zap.String("reason", reason))
		if _, err := r.store.SaveStateIfNewer(ctx, dbState); err != nil {
			logger.Error("recon: failed to fix etcd", zap.String("key", fullKey), zap.Error(err))
			continue
		}
		fixed++
	}

	for fullKey := range have {
		if _, exists := want[fullKey]; !exists {
			logger.Warn("recon: orphan key in etcd", zap.String("key", fullKey))
		}
	}

	logger.Info("reconciliation finished", zap.Int("db_count", len(want)), zap.Int("etcd_count", len(have)), zap.Int("fixed", fixed))
	return fixed
}
