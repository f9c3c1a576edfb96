package handlers

import (
	"context"
	"encoding/json"
	"log"
	"strconv"

	"github.com/gofiber/websocket/v2"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/realtime"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
	"github.com/workbridge/workbridge-backend/internal/utils"
)

// inboundEvent covers every client-to-server event shape.
type inboundEvent struct {
	Type        string                 `json:"type"`
	Message     string                 `json:"message"`
	MessageType string                 `json:"message_type"`
	Metadata    map[string]interface{} `json:"metadata"`
	MessageIDs  []uint                 `json:"message_ids"`
	IsTyping    bool                   `json:"is_typing"`
}

// WebSocketHandler is the per-thread chat consumer. Authentication and
// participancy are checked before the connection joins the thread group;
// either failure closes the connection without any group membership.
func (h *ChatHandler) WebSocketHandler(jwtSecret string) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		threadID64, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			log.Println("ws: invalid thread id:", c.Params("id"))
			return
		}
		threadID := uint(threadID64)

		token := c.Query("token")
		if token == "" {
			log.Printf("ws: missing token for thread %d", threadID)
			return
		}

		claims, err := utils.ParseJWT(jwtSecret, token)
		if err != nil {
			log.Printf("ws: invalid token for thread %d: %v", threadID, err)
			return
		}

		ctx := context.Background()

		var user models.User
		if err := h.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
			log.Printf("ws: unknown user %s", claims.UserID)
			return
		}

		thread, err := h.Svc.LoadThread(ctx, threadID)
		if err != nil {
			log.Printf("ws: thread %d not found", threadID)
			return
		}
		if !thread.IsParticipant(user.ID) {
			log.Printf("ws: user %s not authorized for thread %d", user.Username, threadID)
			return
		}

		group := realtime.ThreadGroup(threadID)
		client := realtime.NewClient(user.ID, user.Username)

		h.Relay.Join(group, client)

		// single writer goroutine owns the socket
		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					log.Println("ws write error:", err)
					return
				}
			}
		}()

		h.enqueue(client, map[string]interface{}{
			"type":      "connection_established",
			"thread_id": threadID,
			"user":      user.Username,
		})
		log.Printf("ws: user %s connected to thread %d", user.Username, threadID)

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var ev inboundEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				h.sendError(client, "Invalid JSON format")
				continue
			}
			if ev.Type == "" {
				ev.Type = "chat_message"
			}

			switch ev.Type {
			case "chat_message":
				h.handleChatMessage(ctx, client, thread, &user, &ev)
			case "mark_messages_read":
				h.handleMarkRead(ctx, client, thread, &user, ev.MessageIDs)
			case "typing_indicator":
				h.Relay.Emit(ctx, group, map[string]interface{}{
					"type":      "typing_indicator",
					"user":      user.Username,
					"is_typing": ev.IsTyping,
				}, client)
			default:
				log.Printf("ws: unknown message type %q from %s", ev.Type, user.Username)
			}
		}

		// leaving closes client.Send, which lets the writer drain and exit
		h.Relay.Leave(group, client)
		<-done
		log.Printf("ws: user %s disconnected from thread %d", user.Username, threadID)
	}
}

func (h *ChatHandler) handleChatMessage(ctx context.Context, client *realtime.Client, thread *models.ChatThread, user *models.User, ev *inboundEvent) {
	_, err := h.Svc.SendMessage(ctx, thread, user, ev.Message, ev.MessageType, ev.Metadata)
	switch err {
	case nil:
	case chatsvc.ErrEmptyMessage:
		h.sendError(client, "Message cannot be empty")
	default:
		log.Printf("ws: send message: %v", err)
		h.sendError(client, "Failed to process message")
	}
}

func (h *ChatHandler) handleMarkRead(ctx context.Context, client *realtime.Client, thread *models.ChatThread, user *models.User, ids []uint) {
	marked, err := h.Svc.MarkMessagesRead(ctx, thread, user, ids)
	if err != nil {
		log.Printf("ws: mark read: %v", err)
		h.sendError(client, "Failed to process message")
		return
	}
	if len(marked) == 0 {
		return
	}
	// the reader's own connection is skipped
	h.Relay.Emit(ctx, realtime.ThreadGroup(thread.ID), map[string]interface{}{
		"type":        "messages_read",
		"message_ids": marked,
		"reader":      user.Username,
	}, client)
}

// enqueue pushes an event to one connection without touching the socket
// directly; the writer goroutine does the actual write.
func (h *ChatHandler) enqueue(client *realtime.Client, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	client.TrySend(payload)
}

func (h *ChatHandler) sendError(client *realtime.Client, msg string) {
	h.enqueue(client, map[string]interface{}{"type": "error", "message": msg})
}
