// Package realtime streams job progress events to WebSocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/internal/progress"
	"github.com/ncobase/jobstream/pkg/logger"
)

// Hub maintains active clients and fans progress events out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *progress.Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// ownerScoped restricts each client to events for its own jobs;
	// admin clients always receive everything.
	ownerScoped bool
}

// NewHub creates a hub.
func NewHub(ownerScoped bool) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		broadcast:   make(chan *progress.Event, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ownerScoped: ownerScoped,
	}
}

// Run dispatches registrations and broadcasts until the context is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.StdLogger().Debug(ctx, "client registered", "user_id", client.userID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.StdLogger().Debug(ctx, "client unregistered", "user_id", client.userID)

		case event := <-h.broadcast:
			h.broadcastEvent(ctx, event)

		case <-ticker.C:
			h.mu.RLock()
			count := len(h.clients)
			h.mu.RUnlock()
			logger.StdLogger().Debug(ctx, "hub stats", "clients", count)
		}
	}
}

// Broadcast queues an event for fan-out. Drops the event when the hub is
// saturated rather than blocking the subscriber.
func (h *Hub) Broadcast(event *progress.Event) {
	select {
	case h.broadcast <- event:
	default:
		logger.StdLogger().Warnf(context.Background(), "hub broadcast buffer full, dropping event for job %s", event.JobID)
	}
}

func (h *Hub) broadcastEvent(ctx context.Context, event *progress.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.StdLogger().Errorf(ctx, "failed to marshal event: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if !h.visibleTo(client, event) {
			continue
		}
		select {
		case client.send <- data:
		default:
			// Client buffer full, skip
			logger.StdLogger().Warn(ctx, "client send buffer full", "user_id", client.userID)
		}
	}
}

// visibleTo applies the owner scoping policy to a single client.
func (h *Hub) visibleTo(client *Client, event *progress.Event) bool {
	if !h.ownerScoped || client.role == structs.RoleAdmin {
		return true
	}
	return event.Owner == client.userID
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

// Stats returns the connection counts of the hub.
func (h *Hub) Stats() map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return map[string]any{
		"total_clients": len(h.clients),
		"owner_scoped":  h.ownerScoped,
	}
}
