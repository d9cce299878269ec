package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"wager-service/internal/service"
	"wager-service/internal/service/round"
	"wager-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one socket subscribed to one room.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	roomID string
	send   chan []byte
}

// ServeRoom upgrades the connection and streams the room's events. Watching
// needs no authentication; bets go through the HTTP API.
func ServeRoom(hub *Hub, c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		roomID := ctx.Param("roomId")
		if _, err := c.Rounds.Engine(roomID); err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}

		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			logger.Log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			roomID: roomID,
			send:   make(chan []byte, sendBuffer),
		}
		hub.subscribe(client)

		// push the current round so the client does not wait for the next event
		if engine, err := c.Rounds.Engine(roomID); err == nil {
			if v, ok := engine.CurrentRound(); ok {
				snapshot := round.Event{Type: "snapshot", RoomID: roomID, Data: v, At: time.Now()}
				if payload, err := json.Marshal(snapshot); err == nil {
					client.send <- payload
				}
			}
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unsubscribe(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// clients only listen; anything they send is discarded
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
