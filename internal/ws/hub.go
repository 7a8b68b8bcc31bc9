package ws

import (
	"sync"
)

// Hub tracks every open connection so shutdown can close them all.
type Hub struct {
	conns sync.Map // connID -> *clientConn
}

func NewHub() *Hub { return &Hub{} }

func (h *Hub) add(c *clientConn)    { h.conns.Store(c.id, c) }
func (h *Hub) remove(c *clientConn) { h.conns.Delete(c.id) }

// Count returns the number of open connections.
func (h *Hub) Count() int {
	n := 0
	h.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll drops every connection; their readers then run the usual leave path.
func (h *Hub) CloseAll() {
	h.conns.Range(func(_, v any) bool {
		v.(*clientConn).close()
		return true
	})
}
