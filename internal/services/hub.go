package services

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"emergency-service/internal/logging"
	"emergency-service/internal/metrics"
	"emergency-service/internal/models"
)

const (
	maxConnsPerUser = 10
	sendBuffer      = 64
	writeWait       = 5 * time.Second
	pingPeriod      = 54 * time.Second

	// AllUsers subscribes to the events of every user.
	AllUsers int64 = 0
)

// Stream message types.
const (
	StreamEventCreated    = "event_created"
	StreamEventEnriched   = "event_enriched"
	StreamStatusChanged   = "event_status_changed"
	StreamContactsAlerted = "contacts_alerted"
)

// Conn is the part of *websocket.Conn the hub writes through. Close must be
// safe to call while a write is in progress.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// StreamMessage is pushed to subscribers on every lifecycle change.
type StreamMessage struct {
	Type       string                 `json:"type"`
	ResourceID string                 `json:"resourceId"`
	Event      *models.EmergencyEvent `json:"event,omitempty"`
	Alert      *models.ContactAlert   `json:"alert,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// subscriber owns the outbound queue of one connection. Only its writePump
// writes to conn.
type subscriber struct {
	userID int64
	conn   Conn
	send   chan []byte
}

// Hub tracks websocket subscribers per user.
type Hub struct {
	connections map[int64]map[Conn]*subscriber
	mutex       sync.Mutex
	logger      *logging.Logger
	metrics     *metrics.Metrics
}

func NewHub(logger *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		connections: make(map[int64]map[Conn]*subscriber),
		logger:      logger,
		metrics:     m,
	}
}

// AddConnection subscribes conn to userID and starts its writer. It reports
// false when the user already has the maximum number of connections.
func (h *Hub) AddConnection(userID int64, conn Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[Conn]*subscriber)
	}
	if len(h.connections[userID]) >= maxConnsPerUser {
		h.logger.Warnf("Max stream connections reached for user %d", userID)
		return false
	}
	sub := &subscriber{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	h.connections[userID][conn] = sub
	go h.writePump(sub)
	h.metrics.StreamClientsChanged(1)
	h.logger.Infof("Added stream connection for user %d (total: %d)", userID, len(h.connections[userID]))
	return true
}

func (h *Hub) RemoveConnection(userID int64, conn Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.removeLocked(userID, conn)
}

// removeLocked unsubscribes conn and closes its queue, which stops the writer.
func (h *Hub) removeLocked(userID int64, conn Conn) {
	conns, exists := h.connections[userID]
	if !exists {
		return
	}
	sub, ok := conns[conn]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	close(sub.send)
	h.metrics.StreamClientsChanged(-1)
	h.logger.Infof("Removed stream connection for user %d (remaining: %d)", userID, len(conns))
}

// Count returns the number of subscribers of userID.
func (h *Hub) Count(userID int64) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections[userID])
}

// Publish queues msg for the owner's subscribers and for AllUsers subscribers.
// It never waits on the network: a subscriber whose queue is full is dropped.
func (h *Hub) Publish(owner *int64, msg StreamMessage) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorf("Failed to encode stream message %s: %v", msg.Type, err)
		return
	}

	targets := []int64{AllUsers}
	if owner != nil && *owner != AllUsers {
		targets = append(targets, *owner)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for _, userID := range targets {
		for conn, sub := range h.connections[userID] {
			select {
			case sub.send <- payload:
			default:
				h.logger.Warnf("Stream subscriber of user %d is too slow, disconnecting", userID)
				h.removeLocked(userID, conn)
				// Unblocks a writer stuck on the network.
				conn.Close()
			}
		}
	}
}

// CloseAll disconnects every subscriber. Queued messages are flushed before
// each connection closes.
func (h *Hub) CloseAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for userID, conns := range h.connections {
		for conn := range conns {
			h.removeLocked(userID, conn)
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Errorf("Failed to send stream message to user %d: %v", sub.userID, err)
				h.RemoveConnection(sub.userID, sub.conn)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.RemoveConnection(sub.userID, sub.conn)
				return
			}
		}
	}
}
