package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/realtime"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
	"github.com/workbridge/workbridge-backend/internal/utils"
)

// wsEnv runs the real consumer on a loopback listener so tests exercise the
// whole path: upgrade, token auth, participancy, group join, fan-out.
type wsEnv struct {
	*testEnv
	hub      *realtime.Hub
	thread   *models.ChatThread
	addr     string
	freelTok string
}

func newWSEnv(t *testing.T) *wsEnv {
	t.Helper()
	base := newTestEnv(t)

	mr := miniredis.RunT(t)
	rdb := realtime.NewRedis(mr.Addr(), "")
	t.Cleanup(func() { rdb.Close() })

	hub := realtime.NewHub()
	relay := realtime.NewRelay(hub, rdb)
	svc := chatsvc.New(base.db, relay)
	chatH := NewChatHandler(base.db, svc, relay)

	thread, _, err := svc.GetOrCreateThread(context.Background(), base.clientP.ID, base.freelP.ID, nil)
	require.NoError(t, err)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws/chat/:id", websocket.New(chatH.WebSocketHandler(testSecret)))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	freelTok, err := utils.SignJWT(testSecret, base.freelanc.ID.String(), string(base.freelanc.Role), 60)
	require.NoError(t, err)

	return &wsEnv{
		testEnv:  base,
		hub:      hub,
		thread:   thread,
		addr:     ln.Addr().String(),
		freelTok: freelTok,
	}
}

func (e *wsEnv) threadURL(token string) string {
	u := fmt.Sprintf("ws://%s/ws/chat/%d", e.addr, e.thread.ID)
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (e *wsEnv) group() string {
	return realtime.ThreadGroup(e.thread.ID)
}

func dialWS(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func sendEvent(t *testing.T, conn *gws.Conn, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(gws.TextMessage, raw))
}

func expectClosed(t *testing.T, conn *gws.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "connection should be closed by the server")
}

func TestWSRejectsMissingToken(t *testing.T) {
	env := newWSEnv(t)

	conn := dialWS(t, env.threadURL(""))
	expectClosed(t, conn)
	assert.Zero(t, env.hub.GroupSize(env.group()), "rejected connection must never join the group")
}

func TestWSRejectsInvalidToken(t *testing.T) {
	env := newWSEnv(t)

	conn := dialWS(t, env.threadURL("not.a.token"))
	expectClosed(t, conn)
	assert.Zero(t, env.hub.GroupSize(env.group()))
}

func TestWSRejectsNonParticipant(t *testing.T) {
	env := newWSEnv(t)

	// valid user, but not a party to the thread
	conn := dialWS(t, env.threadURL(env.adminTok))
	expectClosed(t, conn)
	assert.Zero(t, env.hub.GroupSize(env.group()))
}

func TestWSRejectsUnknownThread(t *testing.T) {
	env := newWSEnv(t)

	conn := dialWS(t, fmt.Sprintf("ws://%s/ws/chat/9999?token=%s", env.addr, env.clientTok))
	expectClosed(t, conn)
}

func TestWSTwoPartyScenario(t *testing.T) {
	env := newWSEnv(t)

	clientConn := dialWS(t, env.threadURL(env.clientTok))
	est := readEvent(t, clientConn)
	assert.Equal(t, "connection_established", est["type"])
	assert.EqualValues(t, env.thread.ID, est["thread_id"])
	assert.Equal(t, "client", est["user"])

	freelConn := dialWS(t, env.threadURL(env.freelTok))
	est = readEvent(t, freelConn)
	assert.Equal(t, "connection_established", est["type"])
	assert.Equal(t, "fl", est["user"])

	assert.Equal(t, 2, env.hub.GroupSize(env.group()))

	// client sends; the whole group gets it, sender echo included
	sendEvent(t, clientConn, map[string]interface{}{"type": "chat_message", "message": "Hello"})

	ev := readEvent(t, freelConn)
	require.Equal(t, "chat_message", ev["type"])
	data := ev["data"].(map[string]interface{})
	assert.Equal(t, "Hello", data["message"])
	sender := data["sender"].(map[string]interface{})
	assert.Equal(t, "client", sender["role"])
	helloID := uint(data["id"].(float64))

	echo := readEvent(t, clientConn)
	assert.Equal(t, "chat_message", echo["type"])

	// freelancer replies; client receives it
	sendEvent(t, freelConn, map[string]interface{}{"type": "chat_message", "message": "Hi"})
	ev = readEvent(t, clientConn)
	require.Equal(t, "chat_message", ev["type"])
	data = ev["data"].(map[string]interface{})
	assert.Equal(t, "Hi", data["message"])
	assert.Equal(t, "freelancer", data["sender"].(map[string]interface{})["role"])
	readEvent(t, freelConn) // freelancer's own echo

	// freelancer marks the client's message read: client is notified, the
	// reader's own connection is skipped
	sendEvent(t, freelConn, map[string]interface{}{
		"type":        "mark_messages_read",
		"message_ids": []uint{helloID},
	})

	ev = readEvent(t, clientConn)
	require.Equal(t, "messages_read", ev["type"])
	assert.Equal(t, "fl", ev["reader"])
	ids := ev["message_ids"].([]interface{})
	require.Len(t, ids, 1)
	assert.EqualValues(t, helloID, ids[0])

	// typing fan-out also skips the sender
	sendEvent(t, clientConn, map[string]interface{}{"type": "typing_indicator", "is_typing": true})
	ev = readEvent(t, freelConn)
	require.Equal(t, "typing_indicator", ev["type"], "reader must not get its own read receipt replayed")
	assert.Equal(t, "client", ev["user"])
	assert.Equal(t, true, ev["is_typing"])

	var row models.ChatMessage
	require.NoError(t, env.db.First(&row, "id = ?", helloID).Error)
	assert.True(t, row.IsRead)
}

func TestWSErrorEventsKeepConnectionOpen(t *testing.T) {
	env := newWSEnv(t)

	conn := dialWS(t, env.threadURL(env.clientTok))
	readEvent(t, conn) // connection_established

	// whitespace-only body: error event, nothing persisted
	sendEvent(t, conn, map[string]interface{}{"type": "chat_message", "message": "   "})
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "Message cannot be empty", ev["message"])

	// malformed JSON: error event, connection survives
	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("{not json")))
	ev = readEvent(t, conn)
	assert.Equal(t, "error", ev["type"])
	assert.Equal(t, "Invalid JSON format", ev["message"])

	// unknown event type: ignored, connection survives
	sendEvent(t, conn, map[string]interface{}{"type": "self_destruct"})

	// the connection still works end to end
	sendEvent(t, conn, map[string]interface{}{"type": "chat_message", "message": "still here"})
	ev = readEvent(t, conn)
	require.Equal(t, "chat_message", ev["type"])
	assert.Equal(t, "still here", ev["data"].(map[string]interface{})["message"])

	var count int64
	env.db.Model(&models.ChatMessage{}).Where("thread_id = ?", env.thread.ID).Count(&count)
	assert.EqualValues(t, 1, count, "only the valid message is persisted")
}
