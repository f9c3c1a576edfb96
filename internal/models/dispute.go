package models

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeStatusOpen      DisputeStatus = "open"
	DisputeStatusResolved  DisputeStatus = "resolved"
	DisputeStatusDismissed DisputeStatus = "dismissed"
)

// Dispute is raised by either party of a thread; only an admin moves it to
// a terminal status, and resolution fields are set only on that transition.
type Dispute struct {
	ID           uint  `gorm:"primaryKey" json:"id"`
	JobID        *uint `gorm:"index" json:"job_id,omitempty"`
	ClientID     uint  `gorm:"index;not null" json:"client_id"`
	FreelancerID uint  `gorm:"index;not null" json:"freelancer_id"`

	Subject     string    `gorm:"type:varchar(200);not null" json:"subject"`
	Description string    `gorm:"type:text;not null" json:"description"`
	CreatedByID uuid.UUID `gorm:"type:uuid;not null" json:"created_by_id"`

	Status     DisputeStatus `gorm:"type:varchar(20);default:'open';index" json:"status"`
	Resolution *string       `gorm:"type:text" json:"resolution,omitempty"`

	ResolvedByID *uuid.UUID `gorm:"type:uuid" json:"resolved_by_id,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Job        *Job               `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Client     *ClientProfile     `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Freelancer *FreelancerProfile `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
	CreatedBy  *User              `gorm:"foreignKey:CreatedByID" json:"created_by,omitempty"`
	ResolvedBy *User              `gorm:"foreignKey:ResolvedByID" json:"resolved_by,omitempty"`
}
