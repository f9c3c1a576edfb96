package models

import (
	"time"

	"github.com/google/uuid"
)

// ClientProfile is the client-side extension of a User, created once the
// user completes client onboarding.
type ClientProfile struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	CompanyName string `gorm:"type:varchar(150)" json:"company_name"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// FreelancerProfile is the freelancer-side extension of a User.
type FreelancerProfile struct {
	ID     uint      `gorm:"primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`

	Title      string `gorm:"type:varchar(150)" json:"title"`
	HourlyRate int64  `json:"hourly_rate"` // smallest currency unit
	Bio        string `gorm:"type:text" json:"bio"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
