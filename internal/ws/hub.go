package ws

import (
	"sync"
)

// Hub keeps client sets per auctionID.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*room)} }

// Broadcast writes msg to every connection watching auctionID.
func (h *Hub) Broadcast(auctionID string, msg []byte) {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	h.mu.Unlock()
	if ok {
		r.broadcast(msg)
	}
}

func (h *Hub) Join(auctionID string, c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[auctionID]
	if !ok {
		r = newRoom()
		h.rooms[auctionID] = r
	}
	r.add(c)
}

// Leave closes c and drops the room once it is empty.
func (h *Hub) Leave(auctionID string, c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[auctionID]
	if !ok {
		c.close()
		return
	}
	if r.remove(c) == 0 {
		delete(h.rooms, auctionID)
	}
}

// RoomSize returns the number of connections watching auctionID.
func (h *Hub) RoomSize(auctionID string) int {
	h.mu.Lock()
	r, ok := h.rooms[auctionID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	return r.size()
}
