package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

type room struct {
	mu    sync.RWMutex
	conns map[*clientConn]struct{}
}

func newRoom() *room { return &room{conns: map[*clientConn]struct{}{}} }

func (r *room) add(c *clientConn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// remove reports how many connections are left.
func (r *room) remove(c *clientConn) int {
	r.mu.Lock()
	delete(r.conns, c)
	n := len(r.conns)
	r.mu.Unlock()
	c.close()
	return n
}

func (r *room) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *room) broadcast(msg []byte) {
	// Take a quick snapshot of the current connections
	r.mu.RLock()
	conns := make([]*clientConn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	// Do the I/O outside the lock. A failed write closes the connection and
	// its reader goroutine performs the leave.
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			c.close()
		}
	}
}
