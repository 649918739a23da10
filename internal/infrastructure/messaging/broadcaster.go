// Package messaging provides the concrete implementation of the SSE broadcaster.
package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/observability/logging"
)

// SSEBroadcaster manages per-user SSE connections carrying the "records need
// attention" indicator.
type SSEBroadcaster struct {
	userClients map[string][]chan string // userId -> []channels
	mu          sync.Mutex
	logger      *logging.ChanneledLogger
}

var (
	globalBroadcaster *SSEBroadcaster
	once              sync.Once
)

// NewSSEBroadcaster creates the singleton SSEBroadcaster instance.
func NewSSEBroadcaster(logger *logging.ChanneledLogger) *SSEBroadcaster {
	once.Do(func() {
		globalBroadcaster = &SSEBroadcaster{
			userClients: make(map[string][]chan string),
			logger:      logger,
		}
	})
	return globalBroadcaster
}

// AddClient registers a new SSE client for a user.
func (b *SSEBroadcaster) AddClient(userID string) chan string {
	ch := make(chan string, 10)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.userClients[userID] = append(b.userClients[userID], ch)

	b.logger.SSE().Debug("SSE client registered", "userId", userID)
	return ch
}

// RemoveClient removes an SSE client for a user.
func (b *SSEBroadcaster) RemoveClient(ch chan string, userID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, exists := b.userClients[userID]; exists {
		newClients := make([]chan string, 0, len(clients)-1)
		for _, client := range clients {
			if client != ch {
				newClients = append(newClients, client)
			}
		}
		b.userClients[userID] = newClients

		if len(b.userClients[userID]) == 0 {
			delete(b.userClients, userID)
		}
	}
	b.logger.SSE().Debug("SSE client unregistered", "userId", userID)
}

// GetConnectionCount returns the connection count for a specific user.
func (b *SSEBroadcaster) GetConnectionCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.userClients[userID])
}

// BroadcastAttention pushes the current queue attention counts to every
// connection a user holds. Fired on dead-letter transitions and requeues.
func (b *SSEBroadcaster) BroadcastAttention(userID string, status attendance.QueueStatus) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SSE().Error("Panic recovered in BroadcastAttention", "error", r, "userId", userID)
		}
	}()

	payload, _ := json.Marshal(status)
	message := fmt.Sprintf("event: attention\ndata: %s\n\n", payload)

	b.logger.SSE().Debug("Broadcasting attention update",
		"message", strings.ReplaceAll(message, "\n", "\\n"), "userId", userID)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.userClients[userID] {
		select {
		case ch <- message:
		default:
			b.logger.SSE().Warn("SSE channel full, message dropped", "userId", userID)
		}
	}
}
