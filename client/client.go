package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/constraints"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
)

// KeyHeader carries the SDK key on stream requests.
const KeyHeader = "X-SafeFlag-Key"

const heartbeatTimeout = 25 * time.Second

// SafeFlagClient keeps a local copy of every flag state in one environment,
// follows the server's change stream and reports evaluations back.
type SafeFlagClient struct {
	addr       string
	env        string
	apiKey     string
	httpClient *http.Client

	mu      sync.RWMutex
	flags   map[string]v1.FlagState
	lastRev int64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSafeFlagClient(addr, env, apiKey string) *SafeFlagClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &SafeFlagClient{
		addr:       strings.TrimRight(addr, "/"),
		env:        env,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 0},
		flags:      make(map[string]v1.FlagState),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start loads the snapshot and starts following the stream in the background.
func (c *SafeFlagClient) Start() error {
	if err := c.fetchAll(); err != nil {
		return err
	}
	go c.runWatchLoop()
	return nil
}

func (c *SafeFlagClient) Close() {
	c.cancel()
}

func (c *SafeFlagClient) fetchAll() error {
	u := fmt.Sprintf("%s/v1/stream/snapshot?env=%s", c.addr, url.QueryEscape(c.env))
	req, err := http.NewRequestWithContext(c.ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set(KeyHeader, c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to fetch flag snapshot", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot: unexpected status %d", resp.StatusCode)
	}

	var res struct {
		Data     []v1.FlagState `json:"data"`
		Revision int64          `json:"revision"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		logger.Error("failed to decode snapshot response", zap.Error(err))
		return err
	}

	flags := make(map[string]v1.FlagState, len(res.Data))
	for _, f := range res.Data {
		flags[f.Key] = f
	}
	c.mu.Lock()
	c.flags = flags
	c.lastRev = res.Revision
	c.mu.Unlock()
	return nil
}

func (c *SafeFlagClient) runWatchLoop() {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		u := fmt.Sprintf("%s/v1/stream/watch?last_rev=%d&env=%s", c.addr, c.lastRev, url.QueryEscape(c.env))
		c.mu.RUnlock()

		reqCtx, reqCancel := context.WithCancel(c.ctx)
		req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
		req.Header.Set(KeyHeader, c.apiKey)
		req.Header.Set("Accept", "text/event-stream")
		resp, err := c.httpClient.Do(req)
		if err == nil && resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			err = fmt.Errorf("watch: unexpected status %d", resp.StatusCode)
		}
		if err != nil {
			reqCancel()
			jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
			logger.Warn("stream disconnected", zap.Error(err))
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff + jitter):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second

		var lastActivity atomic.Int64
		lastActivity.Store(time.Now().UnixNano())
		go func() {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-reqCtx.Done():
					return
				case <-ticker.C:
					if time.Since(time.Unix(0, lastActivity.Load())) > heartbeatTimeout {
						logger.Warn("stream heartbeat timeout, reconnecting")
						reqCancel()
						return
					}
				}
			}
		}()

		if c.consume(resp.Body, func() { lastActivity.Store(time.Now().UnixNano()) }) {
			logger.Warn("received reset event, re-fetching snapshot")
			if err := c.fetchAll(); err != nil {
				logger.Error("failed to refetch snapshot after reset", zap.Error(err))
			}
		}
		reqCancel()
		resp.Body.Close()
	}
}

// consume applies SSE messages from r until it ends. It reports true when the
// server asked for a resync.
func (c *SafeFlagClient) consume(r io.Reader, touch func()) bool {
	scanner := bufio.NewScanner(r)
	var eventType string
	var data bytes.Buffer

	for scanner.Scan() {
		touch()
		line := scanner.Text()
		if line == "" {
			switch {
			case eventType == "reset":
				return true
			case eventType == "ping":
			case data.Len() > 0:
				var msg v1.Message
				if err := json.Unmarshal(data.Bytes(), &msg); err != nil {
					logger.Error("failed to unmarshal flag update", zap.Error(err))
				} else {
					c.handleUpdate(msg)
				}
			}
			eventType = ""
			data.Reset()
			continue
		}

		if rest, ok := strings.CutPrefix(line, "event:"); ok {
			eventType = strings.TrimSpace(rest)
		} else if rest, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteString("\n")
			}
			data.WriteString(strings.TrimSpace(rest))
		}
	}
	return false
}

func (c *SafeFlagClient) handleUpdate(msg v1.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Revision <= c.lastRev {
		logger.Debug("stale revision received", zap.Int64("msg_rev", msg.Revision), zap.Int64("last_rev", c.lastRev))
		return
	}
	switch msg.Action {
	case constraints.DELETE:
		delete(c.flags, msg.Key)
		logger.Info("flag removed", zap.String("key", msg.Key), zap.Int64("rev", msg.Revision))
	case constraints.PUT:
		c.flags[msg.Key] = v1.FlagState{
			Key:      msg.Key,
			Env:      msg.Env,
			Enabled:  msg.Enabled,
			Version:  msg.Version,
			Revision: msg.Revision,
		}
		logger.Info("flag updated", zap.String("key", msg.Key), zap.Bool("enabled", msg.Enabled), zap.Int64("rev", msg.Revision))
	default:
		logger.Warn("unknown action in flag update", zap.Int32("action", int32(msg.Action)))
	}
	c.lastRev = msg.Revision
}

// IsEnabled reports the cached state of key; unknown keys are off.
func (c *SafeFlagClient) IsEnabled(key string) bool {
	c.mu.RLock()
	f, ok := c.flags[key]
	c.mu.RUnlock()
	return ok && f.Enabled
}

// Revision is the last revision applied locally.
func (c *SafeFlagClient) Revision() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRev
}

// ReportHit records one evaluation of key so the server can size its blast radius.
func (c *SafeFlagClient) ReportHit(ctx context.Context, key string) error {
	u := fmt.Sprintf("%s/api/evaluate/%s?env=%s", c.addr, url.PathEscape(key), url.QueryEscape(c.env))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report %s: unexpected status %d", key, resp.StatusCode)
	}
	return nil
}
