package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergency-service/internal/logging"
	"emergency-service/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	messages [][]byte
	delay    time.Duration
	failing  bool
	closed   bool
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("broken pipe")
	}
	if messageType == websocket.TextMessage {
		c.messages = append(c.messages, data)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Messages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.messages...)
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// stalledConn blocks every write until it is closed.
type stalledConn struct {
	once    sync.Once
	release chan struct{}
}

func newStalledConn() *stalledConn { return &stalledConn{release: make(chan struct{})} }

func (c *stalledConn) WriteMessage(int, []byte) error {
	<-c.release
	return errors.New("use of closed network connection")
}

func (c *stalledConn) SetWriteDeadline(time.Time) error { return nil }

func (c *stalledConn) Close() error {
	c.once.Do(func() { close(c.release) })
	return nil
}

func (c *stalledConn) Closed() bool {
	select {
	case <-c.release:
		return true
	default:
		return false
	}
}

func newTestHub(t *testing.T) *Hub {
	hub := NewHub(logging.Discard(), nil)
	t.Cleanup(hub.CloseAll)
	return hub
}

func TestHubLimitsConnectionsPerUser(t *testing.T) {
	hub := newTestHub(t)
	for i := 0; i < maxConnsPerUser; i++ {
		require.True(t, hub.AddConnection(1, &fakeConn{}))
	}
	assert.False(t, hub.AddConnection(1, &fakeConn{}))
	assert.True(t, hub.AddConnection(2, &fakeConn{}))
	assert.Equal(t, maxConnsPerUser, hub.Count(1))
}

func TestHubPublishesToOwnerAndOperators(t *testing.T) {
	hub := newTestHub(t)
	owner, other, operator := &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.AddConnection(1, owner)
	hub.AddConnection(2, other)
	hub.AddConnection(AllUsers, operator)

	userID := int64(1)
	hub.Publish(&userID, StreamMessage{
		Type:       StreamEventCreated,
		ResourceID: "call-1",
		Event:      &models.EmergencyEvent{ExternalID: "call-1", EventType: models.EventFire},
	})

	require.Eventually(t, func() bool {
		return len(owner.Messages()) == 1 && len(operator.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal(owner.Messages()[0], &msg))
	assert.Equal(t, StreamEventCreated, msg.Type)
	assert.Equal(t, "call-1", msg.Event.ExternalID)

	// Anonymous events only reach operators.
	hub.Publish(nil, StreamMessage{Type: StreamEventCreated, ResourceID: "call-2"})
	require.Eventually(t, func() bool { return len(operator.Messages()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, owner.Messages(), 1)
	assert.Empty(t, other.Messages())
}

func TestHubPreservesMessageOrder(t *testing.T) {
	hub := newTestHub(t)
	conn := &fakeConn{delay: time.Millisecond}
	hub.AddConnection(AllUsers, conn)

	for _, id := range []string{"a", "b", "c", "d"} {
		hub.Publish(nil, StreamMessage{Type: StreamStatusChanged, ResourceID: id})
	}

	require.Eventually(t, func() bool { return len(conn.Messages()) == 4 }, time.Second, 5*time.Millisecond)
	var got []string
	for _, raw := range conn.Messages() {
		var msg StreamMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		got = append(got, msg.ResourceID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestHubPublishDoesNotWaitForSlowSubscribers(t *testing.T) {
	hub := newTestHub(t)
	slow := []*fakeConn{{delay: 300 * time.Millisecond}, {delay: 300 * time.Millisecond}, {delay: 300 * time.Millisecond}}
	for _, c := range slow {
		hub.AddConnection(AllUsers, c)
	}

	start := time.Now()
	hub.Publish(nil, StreamMessage{Type: StreamEventCreated, ResourceID: "call-1"})
	hub.Publish(nil, StreamMessage{Type: StreamEventCreated, ResourceID: "call-2"})
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, c := range slow {
			if len(c.Messages()) != 2 {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, hub.Count(AllUsers))
}

func TestHubDisconnectsStalledSubscriber(t *testing.T) {
	hub := newTestHub(t)
	stalled := newStalledConn()
	hub.AddConnection(AllUsers, stalled)

	start := time.Now()
	for i := 0; i < sendBuffer+2; i++ {
		hub.Publish(nil, StreamMessage{Type: StreamStatusChanged})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, stalled.Closed())
	assert.Zero(t, hub.Count(AllUsers))

	// The slot is free again for a well-behaved client.
	next := &fakeConn{}
	require.True(t, hub.AddConnection(AllUsers, next))
	hub.Publish(nil, StreamMessage{Type: StreamStatusChanged})
	require.Eventually(t, func() bool { return len(next.Messages()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestHubDropsFailingConnections(t *testing.T) {
	hub := newTestHub(t)
	broken := &fakeConn{failing: true}
	hub.AddConnection(AllUsers, broken)

	hub.Publish(nil, StreamMessage{Type: StreamStatusChanged})
	require.Eventually(t, func() bool { return hub.Count(AllUsers) == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, broken.Closed, time.Second, 5*time.Millisecond)

	var nilHub *Hub
	assert.NotPanics(t, func() { nilHub.Publish(nil, StreamMessage{}) })
}

func TestHubCloseAll(t *testing.T) {
	hub := NewHub(logging.Discard(), nil)
	a, b := &fakeConn{}, &fakeConn{}
	hub.AddConnection(1, a)
	hub.AddConnection(AllUsers, b)

	hub.CloseAll()
	assert.Zero(t, hub.Count(1))
	assert.Zero(t, hub.Count(AllUsers))
	require.Eventually(t, func() bool { return a.Closed() && b.Closed() }, time.Second, 5*time.Millisecond)
}
