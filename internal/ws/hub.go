package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
)

// RoomFloor is the room every staff screen joins.
const RoomFloor = "floor"

// OrderRoom is the room for a single order's payment screen.
func OrderRoom(orderID int64) string {
	return fmt.Sprintf("order:%d", orderID)
}

// Event represents a WebSocket message to be broadcast
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// roomEvent is an internal struct for routing events to specific rooms
type roomEvent struct {
	Room  string
	Event Event
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	// Registered clients by room
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Outbound messages to broadcast
	broadcast chan *roomEvent

	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomEvent, 256),
	}
}

// Run starts the hub's main loop and returns when ctx is done.
// This should be called as a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.room] == nil {
				h.rooms[client.room] = make(map[*Client]bool)
			}
			h.rooms[client.room][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(client)
			h.mu.Unlock()

		case event := <-h.broadcast:
			message, err := json.Marshal(event.Event)
			if err != nil {
				log.Printf("WARN: marshal %s event: %v", event.Event.Type, err)
				continue
			}

			h.mu.Lock()
			for client := range h.rooms[event.Room] {
				select {
				case client.send <- message:
				default:
					// Slow reader: drop it, the screen reconnects and refetches.
					log.Printf("WARN: dropping slow websocket client %s in %s", client.id, event.Room)
					h.dropLocked(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) dropLocked(client *Client) {
	clients, ok := h.rooms[client.room]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.room)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.rooms {
		for client := range clients {
			h.dropLocked(client)
		}
	}
}

// BroadcastToRoom queues event for every client in room. Events are
// dropped with a warning when the hub is backed up; screens recover on
// their next floor fetch.
func (h *Hub) BroadcastToRoom(room string, event Event) {
	select {
	case h.broadcast <- &roomEvent{Room: room, Event: event}:
	default:
		log.Printf("WARN: websocket hub backed up, dropping %s event for %s", event.Type, room)
	}
}

// Publish marshals payload and sends it to the floor room. Payment events
// also go to the order's own room.
func (h *Hub) Publish(eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("WARN: marshal %s payload: %v", eventType, err)
		return
	}
	event := Event{Type: eventType, Payload: raw}
	h.BroadcastToRoom(RoomFloor, event)

	if p, ok := payload.(interface{ PaymentOrderID() int64 }); ok {
		h.BroadcastToRoom(OrderRoom(p.PaymentOrderID()), event)
	}
}

// Clients returns the number of connected clients in room.
func (h *Hub) Clients(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
