package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	v1 "safeflag/pkg/api/v1"
	"strings"

	clientv3 "go.etcd.io/etcd/client/v3"
)

var ErrMaxRetries = errors.New("max retries exceeded for SaveStateIfNewer")

// StateRootPrefix is the etcd prefix every published flag state lives under.
const StateRootPrefix = "/safeflag/"

// BuildStateKey returns /safeflag/{env}/flags/{key}; env is lower-cased.
func BuildStateKey(env, key string) string {
	return fmt.Sprintf("%s%s/flags/%s", StateRootPrefix, strings.ToLower(env), key)
}

type EtcdInterface interface {
	clientv3.KV
	clientv3.Watcher
	Close() error
}

// StateRepository publishes flag states to etcd.
type StateRepository struct {
	client EtcdInterface
}

func NewStateRepository(client EtcdInterface) *StateRepository {
	return &StateRepository{
		client: client,
	}
}

// SaveStateIfNewer writes the state only if it supersedes the stored one (CAS on ModRevision).
// An equal version with a different enabled bit is drift and is overwritten.
func (r *StateRepository) SaveStateIfNewer(ctx context.Context, state v1.FlagState) (int64, error) {
	const maxRetries = 3
	key := BuildStateKey(state.Env, state.Key)
	val := state.ToJSON()
	var retries int

	for {
		resp, err := r.client.Get(ctx, key)
		if err != nil {
			return 0, err
		}

		var txn clientv3.Txn
		if len(resp.Kvs) == 0 {
			txn = r.client.Txn(ctx).
				If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
				Then(clientv3.OpPut(key, val))
		} else {
			kv := resp.Kvs[0]
			var current v1.FlagState
			if err := json.Unmarshal(kv.Value, &current); err != nil {
				return 0, err
			}
			// idempotent replay
			if !state.Supersedes(current) {
				return kv.ModRevision, nil
			}
			txn = r.client.Txn(ctx).
				If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
				Then(clientv3.OpPut(key, val))
		}

		tResp, err := txn.Commit()
		if err != nil {
			return 0, err
		}
		if tResp.Succeeded {
			return tResp.Header.Revision, nil
		}
		retries++
		if retries > maxRetries {
			return 0, ErrMaxRetries
		}
	}
}

func (r *StateRepository) GetWithRevision(ctx context.Context, prefix string) (*clientv3.GetResponse, error) {
	return r.client.Get(ctx, prefix, clientv3.WithPrefix())
}

func (r *StateRepository) WatchFrom(ctx context.Context, prefix string, startRev int64) clientv3.WatchChan {
	return r.client.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(startRev))
}

func (r *StateRepository) Health(ctx context.Context) error {
	_, err := r.client.Get(ctx, "health_check")
	return err
}
