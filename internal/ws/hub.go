package ws

import (
	"sync"
)

// Hub tracks the live clients so they can be closed together.
type Hub struct {
	clients map[*Client]bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

// register adds client. It fails once the hub is closed.
func (h *Hub) register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[client] = true
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.wg.Done()
	}
}

// Len returns the number of live clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.shutdown()
	}
}

// Wait blocks until every client has left its rooms and unregistered.
func (h *Hub) Wait() {
	h.wg.Wait()
}
