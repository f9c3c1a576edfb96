package realtime

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NewRedis creates a new Redis client.
func NewRedis(addr, password string) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	log.Printf("redis client created (addr: %s)", addr)
	return rdb
}

const eventsChannel = "chat.events"

// envelope is what travels over Redis between nodes.
type envelope struct {
	Origin   string          `json:"origin"`
	Group    string          `json:"group"`
	ExceptID string          `json:"except_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Relay bridges hubs across processes. Emit delivers to the local hub and
// publishes the same payload on Redis; the subscribe loop delivers
// envelopes from other nodes and ignores its own.
type Relay struct {
	hub    *Hub
	rdb    *redis.Client
	nodeID string
}

func NewRelay(hub *Hub, rdb *redis.Client) *Relay {
	return &Relay{hub: hub, rdb: rdb, nodeID: uuid.New().String()}
}

func (r *Relay) Hub() *Hub { return r.hub }

func (r *Relay) Join(group string, client *Client)  { r.hub.Join(group, client) }
func (r *Relay) Leave(group string, client *Client) { r.hub.Leave(group, client) }

// Emit fans out locally, then publishes for other nodes. A Redis failure
// only costs remote delivery; local members are already served.
func (r *Relay) Emit(ctx context.Context, group string, v interface{}, except *Client) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("relay: marshal payload: %v", err)
		return
	}

	r.hub.EmitRaw(group, payload, exceptID(except))

	env := envelope{Origin: r.nodeID, Group: group, ExceptID: exceptID(except), Payload: payload}
	b, _ := json.Marshal(env)
	if err := r.rdb.Publish(ctx, eventsChannel, b).Err(); err != nil {
		log.Printf("relay: publish %s: %v", group, err)
	}
}

// NotifyUser publishes an inbox/badge event on the user's notification
// channel, the way external consumers (push workers) expect it.
func (r *Relay) NotifyUser(ctx context.Context, userID uuid.UUID, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("relay: marshal notification: %v", err)
		return
	}
	if err := r.rdb.Publish(ctx, "notifications:"+userID.String(), payload).Err(); err != nil {
		log.Printf("relay: notify user %s: %v", userID, err)
	}
}

// Run subscribes to the events channel and delivers remote envelopes to
// the local hub until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, eventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("relay: bad envelope: %v", err)
				continue
			}
			if env.Origin == r.nodeID {
				continue
			}
			r.hub.EmitRaw(env.Group, env.Payload, env.ExceptID)
		}
	}
}
