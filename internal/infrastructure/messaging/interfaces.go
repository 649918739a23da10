// Package messaging defines interfaces for real-time communication.
package messaging

import "github.com/attendly/attendly-go/internal/domain/entities/attendance"

// Broadcaster defines the interface for managing SSE client connections and broadcasting messages.
type Broadcaster interface {
	AddClient(userID string) chan string
	RemoveClient(ch chan string, userID string)
	GetConnectionCount(userID string) int
	BroadcastAttention(userID string, status attendance.QueueStatus)
}
