// internal/realtime/hub.go
package realtime

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Client is one live connection. A user connected from several devices has
// several Clients, each with its own buffered send channel.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Username string
	Send     chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewClient(userID uuid.UUID, username string) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, 256),
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// TrySend queues a payload without ever blocking or panicking: it reports
// false when the client is closed or its buffer is full.
func (c *Client) TrySend(payload []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// Hub owns the broadcast groups. Connection handlers never touch the group
// maps directly; membership changes and delivery go through Join/Leave/Emit
// so concurrent add/remove/emit stays safe.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[string]*Client
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[string]*Client)}
}

// ThreadGroup is the group name for a chat thread.
func ThreadGroup(threadID uint) string {
	return fmt.Sprintf("chat_%d", threadID)
}

func (h *Hub) Join(group string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]*Client)
		h.groups[group] = members
	}
	members[client.ID] = client
	log.Printf("hub: client %s (user %s) joined %s", client.ID, client.Username, group)
}

func (h *Hub) Leave(group string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.groups[group]; ok {
		if old, ok := members[client.ID]; ok {
			delete(members, client.ID)
			old.close()
		}
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	log.Printf("hub: client %s left %s", client.ID, group)
}

// Emit fans a payload out to every member of the group, skipping except
// when non-nil. A member whose send buffer is full is dropped from the
// group instead of blocking the emitter.
func (h *Hub) Emit(group string, v interface{}, except *Client) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("hub: marshal broadcast payload: %v", err)
		return
	}
	h.EmitRaw(group, payload, exceptID(except))
}

// EmitRaw delivers a pre-marshaled payload; exceptClientID may be empty.
func (h *Hub) EmitRaw(group string, payload []byte, exceptClientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	for id, client := range members {
		if id == exceptClientID {
			continue
		}
		if !client.TrySend(payload) {
			// slow or dead member: drop it, never block the sender
			delete(members, id)
			client.close()
		}
	}
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// GroupSize reports current membership, for tests and introspection.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func exceptID(c *Client) string {
	if c == nil {
		return ""
	}
	return c.ID
}
