package ws

import (
	"encoding/json"
	"sync"

	"wager-service/internal/service/round"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
)

// Hub fans round events out to socket clients grouped by room. It implements
// round.Notifier; Publish never blocks, slow clients lose messages instead
// of stalling the engines.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]bool)}
}

func (h *Hub) Publish(ev round.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("marshal socket event", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[ev.RoomID] {
		select {
		case client.send <- payload:
		default:
			// client is not draining; it will be dropped by its write pump
		}
	}
}

func (h *Hub) subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*Client]bool)
	}
	h.rooms[c.roomID][c] = true
}

func (h *Hub) unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.rooms[c.roomID]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.rooms, c.roomID)
		}
	}
}

// RoomClients reports the number of watchers on a room.
func (h *Hub) RoomClients(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
