package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"safeflag/internal/buffer"
	"safeflag/internal/repository"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/constraints"
	"safeflag/pkg/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

const resyncDelay = time.Second

// StatePublisher makes a flag state visible to stream clients.
type StatePublisher interface {
	SaveStateIfNewer(ctx context.Context, state v1.FlagState) (int64, error)
}

// StateSource is the etcd view the watcher follows.
type StateSource interface {
	GetWithRevision(ctx context.Context, prefix string) (*clientv3.GetResponse, error)
	WatchFrom(ctx context.Context, prefix string, startRev int64) clientv3.WatchChan
}

// StateWatcher mirrors published states into memory and fans changes out to the hub.
type StateWatcher struct {
	source StateSource
	cache  *StateCache
	buffer *buffer.RevisionBuffer
	hub    *Hub
}

func NewStateWatcher(source StateSource, hub *Hub, bufferSize int) *StateWatcher {
	return &StateWatcher{
		source: source,
		cache:  NewStateCache(),
		buffer: buffer.NewRevisionBuffer(bufferSize),
		hub:    hub,
	}
}

func (w *StateWatcher) Snapshot(env string) ([]v1.FlagState, int64) {
	return w.cache.Snapshot(env)
}

// Since returns buffered changes after lastRev; false means the client must resync.
func (w *StateWatcher) Since(lastRev int64, env string) ([]v1.Message, bool) {
	return w.buffer.Since(lastRev, env)
}

func (w *StateWatcher) apply(fullKey string, state v1.FlagState, action constraints.Action) {
	msg := state.ToMessage(action)
	w.buffer.Add(msg)
	if action == constraints.DELETE {
		w.cache.Delete(fullKey, state.Revision)
	} else {
		w.cache.Update(fullKey, state)
	}
	if w.hub != nil {
		w.hub.Publish(msg)
	}
}

// Run follows etcd until ctx is done, resyncing whenever the watch breaks.
func (w *StateWatcher) Run(ctx context.Context) {
	for {
		rev, err := w.sync(ctx)
		if err == nil {
			w.watch(ctx, rev+1)
		} else {
			logger.Error("failed to load flag state snapshot", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resyncDelay):
		}
	}
}

func (w *StateWatcher) sync(ctx context.Context) (int64, error) {
	resp, err := w.source.GetWithRevision(ctx, repository.StateRootPrefix)
	if err != nil {
		return 0, err
	}
	states := make(map[string]v1.FlagState, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var state v1.FlagState
		if err := json.Unmarshal(kv.Value, &state); err != nil {
			logger.Warn("skipping undecodable flag state", zap.String("key", string(kv.Key)))
			continue
		}
		state.Revision = kv.ModRevision
		states[string(kv.Key)] = state
	}
	w.cache.Replace(states, resp.Header.Revision)
	w.buffer.Reset(resp.Header.Revision)
	logger.Info("flag state snapshot loaded", zap.Int("count", len(resp.Kvs)), zap.Int64("rev", resp.Header.Revision))
	return resp.Header.Revision, nil
}

func (w *StateWatcher) watch(ctx context.Context, fromRev int64) {
	watchChan := w.source.WatchFrom(ctx, repository.StateRootPrefix, fromRev)
	for {
		select {
		case <-ctx.Done():
			return
		case wresp, ok := <-watchChan:
			if !ok {
				logger.Warn("state watch closed, resyncing")
				return
			}
			if wresp.Canceled {
				logger.Warn("state watch canceled, resyncing", zap.Error(wresp.Err()))
				return
			}
			for _, ev := range wresp.Events {
				fullKey := string(ev.Kv.Key)
				if ev.Type == clientv3.EventTypeDelete {
					env, key := parseStateKey(fullKey)
					w.apply(fullKey, v1.FlagState{Key: key, Env: env, Revision: ev.Kv.ModRevision}, constraints.DELETE)
					continue
				}
				var state v1.FlagState
				if err := json.Unmarshal(ev.Kv.Value, &state); err != nil {
					logger.Error("failed to decode flag state", zap.String("key", fullKey), zap.ByteString("raw_value", ev.Kv.Value))
					continue
				}
				state.Revision = ev.Kv.ModRevision
				w.apply(fullKey, state, constraints.PUT)
			}
		}
	}
}

// parseStateKey splits /safeflag/{env}/flags/{key}.
func parseStateKey(fullKey string) (env, key string) {
	parts := strings.Split(strings.TrimPrefix(fullKey, repository.StateRootPrefix), "/")
	if len(parts) == 3 && parts[1] == "flags" {
		return parts[0], parts[2]
	}
	return "", fullKey
}

// LocalStatePublisher feeds a StateWatcher directly when etcd is not configured.
// Revisions are assigned in-process.
type LocalStatePublisher struct {
	mu      sync.Mutex
	rev     int64
	watcher *StateWatcher
}

func NewLocalStatePublisher(w *StateWatcher) *LocalStatePublisher {
	return &LocalStatePublisher{watcher: w}
}

func (p *LocalStatePublisher) SaveStateIfNewer(_ context.Context, state v1.FlagState) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fullKey := repository.BuildStateKey(state.Env, state.Key)
	if current, ok := p.watcher.cache.Get(fullKey); ok && !state.Supersedes(current) {
		return current.Revision, nil
	}
	p.rev++
	state.Revision = p.rev
	p.watcher.apply(fullKey, state, constraints.PUT)
	return p.rev, nil
}
