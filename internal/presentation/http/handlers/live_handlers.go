package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/attendly/attendly-go/internal/infrastructure/messaging"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/attendly/attendly-go/internal/presentation/http/middleware"
	"github.com/attendly/attendly-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the CORS layer; the dashboard runs same-host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// LiveHandlers serves the live dashboard websocket and the per-user SSE
// attention stream.
type LiveHandlers struct {
	hub         *messaging.LiveHub
	broadcaster messaging.Broadcaster
	logger      *logging.ChanneledLogger
}

// NewLiveHandlers creates live-stream handlers
func NewLiveHandlers(hub *messaging.LiveHub, broadcaster messaging.Broadcaster, logger *logging.ChanneledLogger) *LiveHandlers {
	return &LiveHandlers{hub: hub, broadcaster: broadcaster, logger: logger}
}

// GetLiveWS handles GET /api/v1/live/ws, upgrading to a websocket that
// receives attendance events as they happen.
func (h *LiveHandlers) GetLiveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.SSE().Error("Websocket upgrade failed", "error", err.Error())
		return
	}

	client := &messaging.LiveClient{
		Conn: conn,
		Send: make(chan []byte, 64),
	}
	h.hub.Register(client)

	go h.writePump(client)
	go h.readPump(client)
}

// writePump pushes hub events to the peer and keeps the connection alive
// with pings.
func (h *LiveHandlers) writePump(client *messaging.LiveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// notice disconnects and answer pongs.
func (h *LiveHandlers) readPump(client *messaging.LiveClient) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(512)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

// GetAttentionSSE handles GET /api/v1/live/attention: a per-user stream that
// pushes queue status whenever sync activity changes it.
func (h *LiveHandlers) GetAttentionSSE(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	ch := h.broadcaster.AddClient(userID)
	defer h.broadcaster.RemoveClient(ch, userID)

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(time.Duration(config.SSEHeartbeatIntervalSeconds) * time.Second)
	defer heartbeat.Stop()

	h.logger.LogSSEEvent("attention_connected", userID, h.broadcaster.GetConnectionCount(userID))

	c.Stream(func(w io.Writer) bool {
		select {
		case message, ok := <-ch:
			if !ok {
				return false
			}
			fmt.Fprint(w, message)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})

	h.logger.LogSSEEvent("attention_disconnected", userID, h.broadcaster.GetConnectionCount(userID))
}
