package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emergency-service/internal/services"
)

const pongWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Stream upgrades to a websocket and subscribes it to lifecycle messages of
// userId, or of every user when userId is absent.
func (h *Handler) Stream(c *gin.Context) {
	hub := h.svc.Hub()
	if hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "message": "Streaming is disabled"})
		return
	}

	userID := services.AllUsers
	if v := c.Query("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid userId"})
			return
		}
		userID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Stream upgrade failed for user %d: %v", userID, err)
		return
	}
	if !hub.AddConnection(userID, conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections"))
		conn.Close()
		return
	}

	// Reads only detect the peer going away; clients send nothing.
	go func() {
		defer func() {
			hub.RemoveConnection(userID, conn)
			conn.Close()
		}()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
