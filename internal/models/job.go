package models

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// jobTransitions is the allowed lifecycle:
// pending -> open -> in_progress -> completed, or pending -> cancelled.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusOpen, JobStatusCancelled},
	JobStatusOpen:       {JobStatusInProgress},
	JobStatusInProgress: {JobStatusCompleted},
}

// CanTransition reports whether a job may move from its current status to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Job struct {
	ID       uint `gorm:"primaryKey" json:"id"`
	ClientID uint `gorm:"index;not null" json:"client_id"`

	Title       string `gorm:"type:varchar(200);not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Budget      int64  `json:"budget"` // smallest currency unit

	Status JobStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Client *ClientProfile `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}
