package handlers

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/realtime"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
)

type ChatHandler struct {
	DB    *gorm.DB
	Svc   *chatsvc.Service
	Relay *realtime.Relay
}

func NewChatHandler(db *gorm.DB, svc *chatsvc.Service, relay *realtime.Relay) *ChatHandler {
	return &ChatHandler{DB: db, Svc: svc, Relay: relay}
}

// CreateOrGetThread creates a new thread for (client, freelancer, job) or
// returns the existing one.
func (h *ChatHandler) CreateOrGetThread(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req struct {
		ClientID     uint  `json:"client_id"`
		FreelancerID uint  `json:"freelancer_id"`
		JobID        *uint `json:"job_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}
	if req.ClientID == 0 || req.FreelancerID == 0 {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "client_id and freelancer_id are required"})
	}

	var client models.ClientProfile
	if err := h.DB.First(&client, "id = ?", req.ClientID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Client not found"})
	}
	var freelancer models.FreelancerProfile
	if err := h.DB.First(&freelancer, "id = ?", req.FreelancerID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Freelancer not found"})
	}

	// only a participant may open the thread
	if client.UserID != userUUID && freelancer.UserID != userUUID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	if req.JobID != nil {
		var job models.Job
		if err := h.DB.First(&job, "id = ?", *req.JobID).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
		}
	}

	thread, created, err := h.Svc.GetOrCreateThread(c.Context(), req.ClientID, req.FreelancerID, req.JobID)
	if err != nil {
		log.Println("Error creating thread:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to create thread"})
	}

	return c.JSON(fiber.Map{"success": true, "created": created, "data": thread})
}

type UserMini struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type ThreadOut struct {
	ID            uint      `json:"id"`
	ClientID      uint      `json:"client_id"`
	FreelancerID  uint      `json:"freelancer_id"`
	JobID         *uint     `json:"job_id,omitempty"`
	LastMessageAt time.Time `json:"last_message_at"`
	IsActive      bool      `json:"is_active"`
	UnreadCount   int64     `json:"unread_count"`

	Client      *UserMini            `json:"client,omitempty"`
	Freelancer  *UserMini            `json:"freelancer,omitempty"`
	LastMessage *chatsvc.MessageData `json:"last_message,omitempty"`
	Participant *UserMini            `json:"participant_info,omitempty"`
}

func userMini(u *models.User) *UserMini {
	if u == nil {
		return nil
	}
	return &UserMini{ID: u.ID.String(), Name: u.Name, Username: u.Username, Role: string(u.Role)}
}

// GetThreads returns the user's threads ordered by recent activity.
func (h *ChatHandler) GetThreads(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var threads []models.ChatThread
	if err := h.DB.
		Preload("Client").Preload("Client.User").
		Preload("Freelancer").Preload("Freelancer.User").
		Preload("Job").
		Joins("JOIN client_profiles ON client_profiles.id = chat_threads.client_id").
		Joins("JOIN freelancer_profiles ON freelancer_profiles.id = chat_threads.freelancer_id").
		Where("client_profiles.user_id = ? OR freelancer_profiles.user_id = ?", userUUID, userUUID).
		Order("chat_threads.last_message_at DESC").
		Find(&threads).Error; err != nil {

		log.Println("Error fetching threads:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch threads"})
	}

	out := make([]ThreadOut, 0, len(threads))
	for i := range threads {
		t := &threads[i]

		unread, _ := h.Svc.UnreadCount(c.Context(), t.ID, userUUID)

		var lastPtr *chatsvc.MessageData
		var last models.ChatMessage
		if err := h.DB.
			Preload("Sender").
			Where("thread_id = ?", t.ID).
			Order("sent_at DESC, id DESC").
			Limit(1).
			First(&last).Error; err == nil && last.Sender != nil {
			data := chatsvc.MessageData{
				ID:          last.ID,
				Thread:      last.ThreadID,
				Sender:      chatsvc.SenderInfo{ID: last.Sender.ID.String(), Name: last.Sender.Name, Role: string(last.Sender.Role)},
				Message:     last.Message,
				MessageType: last.MessageType,
				SentAt:      last.SentAt,
				IsRead:      last.IsRead,
			}
			lastPtr = &data
		}

		row := ThreadOut{
			ID:            t.ID,
			ClientID:      t.ClientID,
			FreelancerID:  t.FreelancerID,
			JobID:         t.JobID,
			LastMessageAt: t.LastMessageAt,
			IsActive:      t.IsActive,
			UnreadCount:   unread,
			LastMessage:   lastPtr,
		}
		if t.Client != nil {
			row.Client = userMini(t.Client.User)
		}
		if t.Freelancer != nil {
			row.Freelancer = userMini(t.Freelancer.User)
		}
		if t.Client != nil && t.Client.UserID == userUUID && t.Freelancer != nil {
			row.Participant = userMini(t.Freelancer.User)
		} else if t.Freelancer != nil && t.Freelancer.UserID == userUUID && t.Client != nil {
			row.Participant = userMini(t.Client.User)
		}

		out = append(out, row)
	}

	return c.JSON(fiber.Map{"success": true, "data": out})
}

// GetMessages returns a thread's full message history.
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadID, err := parseThreadID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	thread, err := h.Svc.LoadThread(c.Context(), threadID)
	if err == chatsvc.ErrThreadNotFound {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Thread not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch thread"})
	}
	if !thread.IsParticipant(userUUID) {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}

	messages, err := h.Svc.History(c.Context(), thread)
	if err != nil {
		log.Println("Error fetching messages:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch messages"})
	}

	return c.JSON(fiber.Map{"success": true, "data": messages})
}

// SendMessage persists and broadcasts a message over the HTTP path.
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadID, err := parseThreadID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	var req struct {
		Message     string                 `json:"message"`
		MessageType string                 `json:"message_type"`
		Metadata    map[string]interface{} `json:"metadata"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	thread, err := h.Svc.LoadThread(c.Context(), threadID)
	if err == chatsvc.ErrThreadNotFound {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Thread not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch thread"})
	}

	data, err := h.Svc.SendMessage(c.Context(), thread, user, req.Message, req.MessageType, req.Metadata)
	switch err {
	case nil:
	case chatsvc.ErrNotParticipant:
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	case chatsvc.ErrEmptyMessage:
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Message cannot be empty"})
	default:
		log.Println("Error sending message:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to send message"})
	}

	return c.JSON(fiber.Map{"success": true, "data": data})
}

// MarkRead flips the read flag on the given messages (never the caller's
// own) and broadcasts a read receipt to the thread group.
func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadID, err := parseThreadID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread ID"})
	}

	var req struct {
		MessageIDs []uint `json:"message_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	thread, err := h.Svc.LoadThread(c.Context(), threadID)
	if err == chatsvc.ErrThreadNotFound {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Thread not found"})
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to fetch thread"})
	}

	ids, err := h.Svc.MarkMessagesRead(c.Context(), thread, user, req.MessageIDs)
	if err == chatsvc.ErrNotParticipant {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Access denied"})
	}
	if err != nil {
		log.Println("Error marking messages as read:", err)
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to mark messages as read"})
	}

	if len(ids) > 0 {
		h.Relay.Emit(c.Context(), realtime.ThreadGroup(thread.ID), fiber.Map{
			"type":        "messages_read",
			"message_ids": ids,
			"reader":      user.Username,
		}, nil)
	}

	return c.JSON(fiber.Map{"success": true, "marked_read": len(ids)})
}

// GetUnreadTotal returns the unread message count across all of the
// user's threads.
func (h *ChatHandler) GetUnreadTotal(c *fiber.Ctx) error {
	userUUID, err := getUserUUID(c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var count int64
	err = h.DB.Model(&models.ChatMessage{}).
		Joins("JOIN chat_threads ON chat_messages.thread_id = chat_threads.id").
		Joins("JOIN client_profiles ON client_profiles.id = chat_threads.client_id").
		Joins("JOIN freelancer_profiles ON freelancer_profiles.id = chat_threads.freelancer_id").
		Where("(client_profiles.user_id = ? OR freelancer_profiles.user_id = ?) AND chat_messages.sender_id != ? AND chat_messages.is_read = ?",
			userUUID, userUUID, userUUID, false).
		Count(&count).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"success": false, "message": "Failed to count unread messages"})
	}

	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"unread_count": count}})
}

func parseThreadID(c *fiber.Ctx) (uint, error) {
	id64, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id64), nil
}
