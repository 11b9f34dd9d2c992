package api

import (
	"io"
	"net/http"
	"strconv"

	"safeflag/internal/dto/resp"
	"safeflag/internal/service"
	v1 "safeflag/pkg/api/v1"
	"safeflag/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StreamProvider interface {
	Snapshot(env string) ([]v1.FlagState, int64)
	Since(lastRev int64, env string) ([]v1.Message, bool)
}

type StreamHandler struct {
	states StreamProvider
	hub    *service.Hub
}

func NewStreamHandler(states StreamProvider, hub *service.Hub) *StreamHandler {
	return &StreamHandler{
		states: states,
		hub:    hub,
	}
}

func sseHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
}

// pump forwards client messages until the client is dropped or the request ends.
// Messages at or below maxSentRev were already replayed and are skipped.
func (h *StreamHandler) pump(c *gin.Context, client *service.Client, maxSentRev int64) {
	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return false
			}
			if msg.Type == "ping" {
				c.SSEvent("ping", "pong")
				return true
			}
			if msg.Revision <= maxSentRev {
				return true
			}
			c.SSEvent("message", msg)
			maxSentRev = msg.Revision
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *StreamHandler) WatchFlags(c *gin.Context) {
	env := c.Query("env")
	if env == "" {
		logger.Warn("stream client without env, refused", zap.String("ip", c.ClientIP()))
		c.JSON(http.StatusBadRequest, resp.Fail("Validation Error", "invalid input",
			[]service.FieldError{{Field: "env", Message: "is required"}}))
		return
	}

	var lastRev int64
	if s := c.Query("last_rev"); s != "" {
		lastRev, _ = strconv.ParseInt(s, 10, 64)
	}
	logger.Info("stream client connected",
		zap.String("env", env),
		zap.Int64("last_rev", lastRev),
		zap.String("ip", c.ClientIP()),
	)

	client := &service.Client{Send: make(chan v1.Message, 128), Env: env}
	if !h.hub.Join(client) {
		c.JSON(http.StatusServiceUnavailable, resp.Fail("Server Error", "stream hub stopped", nil))
		return
	}
	defer h.hub.Leave(client)

	sseHeaders(c)
	maxSentRev := lastRev
	if messages, ok := h.states.Since(lastRev, env); ok {
		for _, msg := range messages {
			c.SSEvent("message", msg)
			maxSentRev = msg.Revision
		}
	} else {
		c.SSEvent("reset", "revision_too_old")
	}
	c.Writer.Flush()

	h.pump(c, client, maxSentRev)
}

func (h *StreamHandler) DashboardWatch(c *gin.Context) {
	logger.Info("dashboard client connected",
		zap.String("operator", service.GetOperator(c.Request.Context())),
		zap.String("ip", c.ClientIP()),
	)

	client := &service.Client{Send: make(chan v1.Message, 128), Env: c.Query("env")}
	if !h.hub.Join(client) {
		c.JSON(http.StatusServiceUnavailable, resp.Fail("Server Error", "stream hub stopped", nil))
		return
	}
	defer h.hub.Leave(client)

	sseHeaders(c)
	c.Writer.Flush()
	h.pump(c, client, 0)
}

func (h *StreamHandler) FetchAll(c *gin.Context) {
	states, rev := h.states.Snapshot(c.Query("env"))
	if states == nil {
		states = []v1.FlagState{}
	}
	c.JSON(http.StatusOK, resp.SnapshotResponse{
		Data:     states,
		Revision: rev,
	})
}
