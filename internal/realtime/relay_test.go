package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T, mr *miniredis.Miniredis) (*Relay, context.CancelFunc) {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	relay := NewRelay(NewHub(), rdb)
	ctx, cancel := context.WithCancel(context.Background())
	go relay.Run(ctx)

	// wait for the subscription to be live before publishing anything
	require.Eventually(t, func() bool {
		n, err := rdb.PubSubNumSub(context.Background(), eventsChannel).Result()
		return err == nil && n[eventsChannel] > 0
	}, time.Second, 5*time.Millisecond)

	return relay, cancel
}

func waitForPayload(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var v map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &v))
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return nil
	}
}

func TestRelayDeliversAcrossNodes(t *testing.T) {
	mr := miniredis.RunT(t)

	nodeA, cancelA := newTestRelay(t, mr)
	defer cancelA()
	nodeB, cancelB := newTestRelay(t, mr)
	defer cancelB()

	local := NewClient(uuid.New(), "local")
	remote := NewClient(uuid.New(), "remote")
	nodeA.Join("chat_5", local)
	nodeB.Join("chat_5", remote)

	nodeA.Emit(context.Background(), "chat_5", map[string]interface{}{
		"type": "chat_message",
		"data": map[string]interface{}{"message": "hello"},
	}, nil)

	// local member is served directly
	v := waitForPayload(t, local)
	assert.Equal(t, "chat_message", v["type"])

	// remote member gets the envelope over redis
	v = waitForPayload(t, remote)
	assert.Equal(t, "chat_message", v["type"])
}

func TestRelayIgnoresOwnEnvelopes(t *testing.T) {
	mr := miniredis.RunT(t)

	node, cancel := newTestRelay(t, mr)
	defer cancel()

	c := NewClient(uuid.New(), "only")
	node.Join("chat_6", c)

	node.Emit(context.Background(), "chat_6", map[string]interface{}{"type": "chat_message"}, nil)

	// exactly one copy: the direct local delivery, not a second one from
	// the subscribe loop replaying our own envelope
	waitForPayload(t, c)

	time.Sleep(100 * time.Millisecond)
	select {
	case raw := <-c.Send:
		t.Fatalf("duplicate delivery: %s", raw)
	default:
	}
}

func TestRelayExceptTravelsWithEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)

	nodeA, cancelA := newTestRelay(t, mr)
	defer cancelA()
	nodeB, cancelB := newTestRelay(t, mr)
	defer cancelB()

	sender := NewClient(uuid.New(), "sender")
	peer := NewClient(uuid.New(), "peer")
	nodeA.Join("chat_8", sender)
	nodeB.Join("chat_8", peer)

	nodeA.Emit(context.Background(), "chat_8", map[string]interface{}{"type": "typing_indicator"}, sender)

	v := waitForPayload(t, peer)
	assert.Equal(t, "typing_indicator", v["type"])

	time.Sleep(100 * time.Millisecond)
	select {
	case raw := <-sender.Send:
		t.Fatalf("sender should not see its own typing event: %s", raw)
	default:
	}
}

func TestNotifyUserPublishesOnUserChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	relay := NewRelay(NewHub(), rdb)

	userID := uuid.New()
	sub := rdb.Subscribe(context.Background(), "notifications:"+userID.String())
	defer sub.Close()
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	relay.NotifyUser(context.Background(), userID, map[string]interface{}{
		"type":      "chat_message",
		"thread_id": 3,
	})

	msg, err := sub.ReceiveTimeout(context.Background(), 2*time.Second)
	require.NoError(t, err)
	m, ok := msg.(*redis.Message)
	require.True(t, ok, "expected a message, got %T", msg)

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(m.Payload), &v))
	assert.Equal(t, "chat_message", v["type"])
}
