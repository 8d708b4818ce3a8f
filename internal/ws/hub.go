package ws

import "sync"

// Subscriber abstracts a streaming client that accepts named events.
type Subscriber interface {
	SendEvent(event string, payload []byte) error
	Close()
}

// Hub tracks the set of live-stream subscribers. Sessions run their own
// timer loops; the hub only serves registry lookups and immediate fan-out
// of store-raised alerts.
type Hub struct {
	mu      sync.RWMutex
	clients map[Subscriber]struct{}
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[Subscriber]struct{})}
}

// Register adds a subscriber.
func (h *Hub) Register(client Subscriber) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(client Subscriber) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every subscriber. Clients whose transport has
// failed are closed and dropped. Sends run outside the registry lock so a
// stalled subscriber cannot block registration, Count, or other callers.
func (h *Hub) Broadcast(event string, payload []byte) {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.clients))
	for client := range h.clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	var failed []Subscriber
	for _, client := range targets {
		if err := client.SendEvent(event, payload); err != nil {
			failed = append(failed, client)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range failed {
		if _, ok := h.clients[client]; ok {
			client.Close()
			delete(h.clients, client)
		}
	}
}
