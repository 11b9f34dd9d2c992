package service

import (
	"sort"
	"sync"

	v1 "safeflag/pkg/api/v1"
)

// StateCache is the in-memory mirror of published flag states, keyed by etcd key.
type StateCache struct {
	mu       sync.RWMutex
	data     map[string]v1.FlagState
	revision int64 // highest etcd revision applied
}

func NewStateCache() *StateCache {
	return &StateCache{
		data: make(map[string]v1.FlagState),
	}
}

func (c *StateCache) Update(fullKey string, s v1.FlagState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[fullKey] = s
	if s.Revision > c.revision {
		c.revision = s.Revision
	}
}

// Replace swaps in a full snapshot taken at rev.
func (c *StateCache) Replace(states map[string]v1.FlagState, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = states
	c.revision = rev
}

func (c *StateCache) Get(fullKey string) (v1.FlagState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.data[fullKey]
	return s, ok
}

func (c *StateCache) Delete(fullKey string, rev int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, fullKey)
	if rev > c.revision {
		c.revision = rev
	}
}

// Snapshot returns the states of env (all envs when empty) ordered by key.
func (c *StateCache) Snapshot(env string) ([]v1.FlagState, int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]v1.FlagState, 0, len(c.data))
	for _, s := range c.data {
		if env != "" && !sameEnv(s.Env, env) {
			continue
		}
		res = append(res, s)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Env != res[j].Env {
			return res[i].Env < res[j].Env
		}
		return res[i].Key < res[j].Key
	})
	return res, c.revision
}
