package service

import (
	"context"
	"time"

	"safeflag/internal/metrics"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	"go.uber.org/zap"
)

const pingType = "ping"

// Client is one stream subscriber. An empty Env receives every environment.
type Client struct {
	Send chan v1.Message
	Env  string
}

func (c *Client) wants(msg v1.Message) bool {
	return c.Env == "" || msg.Type == pingType || sameEnv(c.Env, msg.Env)
}

// Hub fans state changes out to stream clients.
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan v1.Message
	Register   chan *Client
	Unregister chan *Client

	observer  metrics.HubObserver
	heartbeat time.Duration
	done      chan struct{}
}

func NewHub(observer metrics.HubObserver, heartbeat time.Duration, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan v1.Message, bufferSize),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		observer:   observer,
		heartbeat:  heartbeat,
		done:       make(chan struct{}),
	}
}

// Join registers c unless the hub has stopped.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters c; it never blocks after the hub has stopped.
func (h *Hub) Leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Publish queues msg for fan-out unless the hub has stopped.
func (h *Hub) Publish(msg v1.Message) {
	select {
	case h.Broadcast <- msg:
	case <-h.done:
	}
}

func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.Register:
			h.clients[c] = true
			h.observer.IncOnline()
		case c := <-h.Unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.Broadcast:
			start := time.Now()
			for c := range h.clients {
				if !c.wants(msg) {
					continue
				}
				select {
				case c.Send <- msg:
				default:
					logger.Warn("stream client too slow, disconnecting", zap.String("env", c.Env))
					h.drop(c)
				}
			}
			h.observer.RecordPush()
			h.observer.ObservePushLatency(time.Since(start).Seconds())
			h.observer.UpdateEventLag(len(h.Broadcast))
		case <-ticker.C:
			ping := v1.Message{Type: pingType}
			for c := range h.clients {
				select {
				case c.Send <- ping:
				default:
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.Send)
	h.observer.DecOnline()
}
