package messaging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

// LiveClient represents a single connected live-attendance dashboard client.
type LiveClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// LiveEventType tags the websocket payloads.
type LiveEventType string

const (
	LiveSessionOpened LiveEventType = "session_opened"
	LiveSessionClosed LiveEventType = "session_closed"
	LiveRecordSynced  LiveEventType = "record_synced"
)

// LiveEvent is the payload pushed to live dashboard clients.
type LiveEvent struct {
	Type        LiveEventType           `json:"type"`
	UserID      string                  `json:"userId"`
	ZoneID      string                  `json:"zoneId"`
	SessionID   string                  `json:"sessionId,omitempty"`
	RecordID    string                  `json:"recordId,omitempty"`
	Outcome     attendance.Outcome      `json:"outcome,omitempty"`
	Punctuality attendance.Punctuality  `json:"punctuality,omitempty"`
	At          time.Time               `json:"at"`
}

// LiveHub manages all connected live dashboard clients and fans out
// attendance events as they happen.
type LiveHub struct {
	clients    map[*LiveClient]bool
	register   chan *LiveClient
	unregister chan *LiveClient
	events     chan LiveEvent
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewLiveHub creates a new hub instance.
func NewLiveHub(logger *logging.ChanneledLogger) *LiveHub {
	return &LiveHub{
		clients:    make(map[*LiveClient]bool),
		register:   make(chan *LiveClient),
		unregister: make(chan *LiveClient),
		events:     make(chan LiveEvent, 256),
		logger:     logger,
	}
}

// Run starts the hub's main loop. This should be run as a goroutine.
func (h *LiveHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.SSE().Info("Live attendance client connected", "clients", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			h.logger.SSE().Info("Live attendance client disconnected", "clients", h.ClientCount())

		case event := <-h.events:
			h.broadcast(event)
		}
	}
}

// Register queues a client for registration.
func (h *LiveHub) Register(client *LiveClient) {
	h.register <- client
}

// Unregister queues a client for unregistration.
func (h *LiveHub) Unregister(client *LiveClient) {
	h.unregister <- client
}

// ClientCount returns the number of connected clients.
func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish submits an event for broadcast. Non-blocking: under pressure the
// oldest events are dropped, dashboards only need the current picture.
func (h *LiveHub) Publish(event LiveEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.SSE().Warn("Live event buffer full, event dropped", "type", string(event.Type))
	}
}

// PublishSessionOpened announces a fresh check-in.
func (h *LiveHub) PublishSessionOpened(s *attendance.Session) {
	h.Publish(LiveEvent{
		Type:        LiveSessionOpened,
		UserID:      s.UserID,
		ZoneID:      s.ZoneID,
		SessionID:   s.SessionID,
		Punctuality: s.Punctuality,
		At:          s.OpenedAt,
	})
}

// PublishSessionClosed announces a terminal session transition.
func (h *LiveHub) PublishSessionClosed(rec attendance.Record) {
	h.Publish(LiveEvent{
		Type:        LiveSessionClosed,
		UserID:      rec.UserID,
		ZoneID:      rec.ZoneID,
		SessionID:   rec.SessionID,
		RecordID:    rec.RecordID,
		Outcome:     rec.Outcome,
		Punctuality: rec.Punctuality,
		At:          rec.ClosedAt,
	})
}

// PublishRecordSynced announces a record confirmed by the remote store.
func (h *LiveHub) PublishRecordSynced(rec attendance.Record) {
	h.Publish(LiveEvent{
		Type:        LiveRecordSynced,
		UserID:      rec.UserID,
		ZoneID:      rec.ZoneID,
		SessionID:   rec.SessionID,
		RecordID:    rec.RecordID,
		Outcome:     rec.Outcome,
		Punctuality: rec.Punctuality,
		At:          time.Now().UTC(),
	})
}

func (h *LiveHub) broadcast(event LiveEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.SSE().Error("Failed to marshal live event", "error", err.Error())
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- message:
		default:
			// Slow consumer; skip rather than block the hub.
		}
	}
}
