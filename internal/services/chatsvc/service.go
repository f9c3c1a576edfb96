// Package chatsvc owns the persist-then-broadcast contract of the chat
// core: every message, whether typed by a user over a live connection or
// injected by the payment/dispute subsystems, goes through the same path.
package chatsvc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/realtime"
)

var (
	ErrEmptyMessage   = errors.New("message cannot be empty")
	ErrNotParticipant = errors.New("user is not a thread participant")
	ErrThreadNotFound = errors.New("thread not found")
)

// Broadcaster is the fan-out collaborator. realtime.Relay implements it;
// tests substitute a recorder.
type Broadcaster interface {
	Emit(ctx context.Context, group string, v interface{}, except *realtime.Client)
	NotifyUser(ctx context.Context, userID uuid.UUID, v interface{})
}

type Service struct {
	DB *gorm.DB
	B  Broadcaster
}

func New(db *gorm.DB, b Broadcaster) *Service {
	return &Service{DB: db, B: b}
}

// SenderInfo is the sender block of a broadcast message event.
type SenderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// MessageData is the serialized message carried in chat_message events and
// returned by the history endpoint.
type MessageData struct {
	ID          uint            `json:"id"`
	Thread      uint            `json:"thread"`
	Sender      SenderInfo      `json:"sender"`
	Message     string          `json:"message"`
	MessageType string          `json:"message_type"`
	SentAt      time.Time       `json:"sent_at"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	IsRead      bool            `json:"is_read"`
}

func serializeMessage(msg *models.ChatMessage, sender *models.User) MessageData {
	return MessageData{
		ID:          msg.ID,
		Thread:      msg.ThreadID,
		Sender:      SenderInfo{ID: sender.ID.String(), Name: sender.Name, Role: string(sender.Role)},
		Message:     msg.Message,
		MessageType: msg.MessageType,
		SentAt:      msg.SentAt,
		Metadata:    json.RawMessage(msg.Metadata),
		IsRead:      msg.IsRead,
	}
}

// LoadThread fetches a thread with both participants preloaded, which
// IsParticipant needs.
func (s *Service) LoadThread(ctx context.Context, threadID uint) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.DB.WithContext(ctx).
		Preload("Client").
		Preload("Client.User").
		Preload("Freelancer").
		Preload("Freelancer.User").
		Preload("Job").
		First(&thread, "id = ?", threadID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// GetOrCreateThread returns the unique thread for the triple, creating it
// lazily on first contact. A lost creation race surfaces as a unique
// violation and is resolved by re-fetching.
func (s *Service) GetOrCreateThread(ctx context.Context, clientID, freelancerID uint, jobID *uint) (*models.ChatThread, bool, error) {
	find := func() (*models.ChatThread, error) {
		var thread models.ChatThread
		q := s.DB.WithContext(ctx).
			Preload("Client").Preload("Client.User").
			Preload("Freelancer").Preload("Freelancer.User").
			Where("client_id = ? AND freelancer_id = ?", clientID, freelancerID)
		if jobID != nil {
			q = q.Where("job_id = ?", *jobID)
		} else {
			q = q.Where("job_id IS NULL")
		}
		if err := q.First(&thread).Error; err != nil {
			return nil, err
		}
		return &thread, nil
	}

	if thread, err := find(); err == nil {
		return thread, false, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	thread := models.ChatThread{
		ClientID:      clientID,
		FreelancerID:  freelancerID,
		JobID:         jobID,
		LastMessageAt: time.Now(),
	}
	if err := s.DB.WithContext(ctx).Create(&thread).Error; err != nil {
		if isUniqueViolation(err) {
			existing, ferr := find()
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	created, err := s.LoadThread(ctx, thread.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// SendMessage persists a message from sender into the thread, bumps the
// thread's last_message_at, then fans the serialized event out to the
// whole group. Persistence strictly precedes the broadcast so a receiver
// querying history after the event always sees the row.
func (s *Service) SendMessage(ctx context.Context, thread *models.ChatThread, sender *models.User, body, msgType string, metadata map[string]interface{}) (*MessageData, error) {
	if !thread.IsParticipant(sender.ID) {
		return nil, ErrNotParticipant
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	msg := models.ChatMessage{
		ThreadID:    thread.ID,
		SenderID:    sender.ID,
		Message:     body,
		MessageType: msgType,
	}
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return nil, err
		}
		msg.Metadata = datatypes.JSON(raw)
	}

	if err := s.DB.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}

	// display hint only; last-write-wins is fine under concurrent sends
	_ = s.DB.WithContext(ctx).Model(&models.ChatThread{}).
		Where("id = ?", thread.ID).
		Update("last_message_at", msg.SentAt).Error
	thread.LastMessageAt = msg.SentAt

	data := serializeMessage(&msg, sender)
	s.B.Emit(ctx, realtime.ThreadGroup(thread.ID), map[string]interface{}{
		"type": "chat_message",
		"data": data,
	}, nil)

	if other := thread.OtherParticipantUserID(sender.ID); other != uuid.Nil {
		s.B.NotifyUser(ctx, other, map[string]interface{}{
			"type":      "chat_message",
			"thread_id": thread.ID,
			"sender_id": sender.ID.String(),
			"preview":   body,
		})
	}

	return &data, nil
}

// PostSystemMessage injects a system-typed message on behalf of a business
// subsystem (payments, disputes, job updates). Same persist+broadcast
// contract as SendMessage; no live connection is required from the caller.
func (s *Service) PostSystemMessage(ctx context.Context, threadID uint, actor *models.User, body, msgType string, metadata map[string]interface{}) (*MessageData, error) {
	thread, err := s.LoadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if msgType == "" || msgType == models.MessageTypeText {
		msgType = models.MessageTypeSystem
	}
	return s.SendMessage(ctx, thread, actor, body, msgType, metadata)
}

// MarkMessagesRead flips is_read on the given messages, skipping any the
// reader authored, records read receipts, and returns the affected ids.
func (s *Service) MarkMessagesRead(ctx context.Context, thread *models.ChatThread, reader *models.User, messageIDs []uint) ([]uint, error) {
	if !thread.IsParticipant(reader.ID) {
		return nil, ErrNotParticipant
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}

	var targets []models.ChatMessage
	if err := s.DB.WithContext(ctx).
		Where("id IN ? AND thread_id = ? AND sender_id != ?", messageIDs, thread.ID, reader.ID).
		Find(&targets).Error; err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	ids := make([]uint, 0, len(targets))
	receipts := make([]models.MessageRead, 0, len(targets))
	for _, m := range targets {
		ids = append(ids, m.ID)
		receipts = append(receipts, models.MessageRead{MessageID: m.ID, UserID: reader.ID})
	}

	if err := s.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("id IN ?", ids).
		Update("is_read", true).Error; err != nil {
		return nil, err
	}

	// receipts are idempotent per (message, user)
	if err := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipts).Error; err != nil {
		return nil, err
	}

	return ids, nil
}

// History returns the thread's messages in send order, auto-increment id
// breaking sub-second timestamp ties.
func (s *Service) History(ctx context.Context, thread *models.ChatThread) ([]MessageData, error) {
	var messages []models.ChatMessage
	if err := s.DB.WithContext(ctx).
		Preload("Sender").
		Where("thread_id = ?", thread.ID).
		Order("sent_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, err
	}

	out := make([]MessageData, 0, len(messages))
	for i := range messages {
		sender := messages[i].Sender
		if sender == nil {
			sender = &models.User{ID: messages[i].SenderID}
		}
		out = append(out, serializeMessage(&messages[i], sender))
	}
	return out, nil
}

// UnreadCount counts messages in the thread not sent by the user and not
// yet read.
func (s *Service) UnreadCount(ctx context.Context, threadID uint, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("thread_id = ? AND sender_id != ? AND is_read = ?", threadID, userID, false).
		Count(&count).Error
	return count, err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "unique constraint")
}
