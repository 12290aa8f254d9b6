package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nestfolio/backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection in a collection room.
type Client struct {
	ID           string
	CollectionID uuid.UUID
	UserID       uuid.UUID
	hub          *Hub
	conn         *websocket.Conn
	send         chan WSMessage
	logger       *zap.Logger
}

// AccessCheck reports whether a user may watch a collection. Wired to
// the collections access resolver in main.
type AccessCheck func(ctx context.Context, collectionID, userID uuid.UUID, isAdmin bool) (bool, error)

// ServeWs handles the WebSocket upgrade and runs the client loop. The
// session token travels as a query parameter since browsers cannot set
// headers on WebSocket dials.
func ServeWs(hub *Hub, logger *zap.Logger, validate middleware.TokenValidator, canView AccessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		collectionIDStr := c.Query("collection_id")
		token := c.Query("token")
		if collectionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "collection_id and token required"})
			return
		}
		collectionID, err := uuid.Parse(collectionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection_id"})
			return
		}
		ident, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		allowed, err := canView(c.Request.Context(), collectionID, ident.UserID, ident.IsAdmin)
		if err != nil || !allowed {
			c.JSON(http.StatusForbidden, gin.H{"error": "no access to this collection"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:           uuid.New().String(),
			CollectionID: collectionID,
			UserID:       ident.UserID,
			hub:          hub,
			conn:         conn,
			send:         make(chan WSMessage, 256),
			logger:       logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "join":
			c.hub.BroadcastToCollectionAndPublish(c.CollectionID, "viewer_count", map[string]int{
				"count": c.hub.ViewerCount(c.CollectionID),
			})
		default:
			// clients only watch; anything else is ignored
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
