// internal/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ChatThread is a conversation between exactly one client and one
// freelancer, optionally scoped to a job. At most one thread exists per
// (client, freelancer, job) triple; the unique index is created with
// NULLS NOT DISTINCT so job-less threads are covered too (see db.Migrate).
type ChatThread struct {
	ID uint `gorm:"primaryKey" json:"id"`

	ClientID     uint  `gorm:"index:idx_thread_participants;not null" json:"client_id"`
	FreelancerID uint  `gorm:"index:idx_thread_participants;not null" json:"freelancer_id"`
	JobID        *uint `gorm:"index" json:"job_id,omitempty"`

	LastMessageAt time.Time `gorm:"index;autoCreateTime" json:"last_message_at"`
	IsActive      bool      `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`

	Client     *ClientProfile     `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Freelancer *FreelancerProfile `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
	Job        *Job               `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Messages   []ChatMessage      `gorm:"foreignKey:ThreadID" json:"messages,omitempty"`
}

// IsParticipant reports whether userID is the thread's client user or
// freelancer user. Requires Client and Freelancer to be preloaded.
func (t *ChatThread) IsParticipant(userID uuid.UUID) bool {
	if t.Client != nil && t.Client.UserID == userID {
		return true
	}
	if t.Freelancer != nil && t.Freelancer.UserID == userID {
		return true
	}
	return false
}

// OtherParticipantUserID returns the user id of the peer, or uuid.Nil when
// userID is not a participant.
func (t *ChatThread) OtherParticipantUserID(userID uuid.UUID) uuid.UUID {
	if t.Client != nil && t.Client.UserID == userID && t.Freelancer != nil {
		return t.Freelancer.UserID
	}
	if t.Freelancer != nil && t.Freelancer.UserID == userID && t.Client != nil {
		return t.Client.UserID
	}
	return uuid.Nil
}

const (
	MessageTypeText             = "text"
	MessageTypeSystem           = "system"
	MessageTypePaymentCompleted = "payment_completed"
	MessageTypeDisputeCreated   = "dispute_created"
	MessageTypeJobUpdate        = "job_update"
)

// ChatMessage is immutable once sent except for the read flag and an
// optional edit timestamp. The auto-increment id is the ordering tie-break
// for messages persisted within the same timestamp granularity.
type ChatMessage struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	ThreadID uint      `gorm:"index:idx_message_thread_sent;not null" json:"thread_id"`
	SenderID uuid.UUID `gorm:"type:uuid;index;not null" json:"sender_id"`

	Message     string `gorm:"type:text;not null" json:"message"`
	MessageType string `gorm:"type:varchar(20);default:'text'" json:"message_type"`

	SentAt   time.Time  `gorm:"index:idx_message_thread_sent;autoCreateTime" json:"sent_at"`
	IsRead   bool       `gorm:"default:false;index" json:"is_read"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	// Structured payload for system-generated messages (dispute id,
	// payment amount, job status...).
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	Sender *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

// MessageRead is a per-user read receipt row.
type MessageRead struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"uniqueIndex:idx_message_reader;not null" json:"message_id"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_message_reader;not null" json:"user_id"`
	ReadAt    time.Time `gorm:"autoCreateTime" json:"read_at"`
}
