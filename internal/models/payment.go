package models

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Payment tracks a transaction between a client and a freelancer for a job.
// At most one completed payment should exist per (job, freelancer) pair;
// this is checked in the handler, not DB-enforced.
type Payment struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	JobID        uint `gorm:"index;not null" json:"job_id"`
	ClientID     uint `gorm:"index;not null" json:"client_id"`
	FreelancerID uint `gorm:"index;not null" json:"freelancer_id"`

	Amount   int64  `gorm:"not null" json:"amount"` // smallest currency unit
	Currency string `gorm:"type:varchar(10);default:'INR'" json:"currency"`

	PaymentMethod string        `gorm:"type:varchar(50)" json:"payment_method"`
	Status        PaymentStatus `gorm:"type:varchar(20);default:'pending';index" json:"status"`

	// External gateway references
	TransactionID    *string `gorm:"type:varchar(255);uniqueIndex" json:"transaction_id,omitempty"`
	GatewayOrderID   string  `gorm:"type:varchar(255);index" json:"gateway_order_id"`
	GatewayPaymentID string  `gorm:"type:varchar(255)" json:"gateway_payment_id"`
	GatewaySignature string  `gorm:"type:varchar(500)" json:"-"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	Job        *Job               `gorm:"foreignKey:JobID" json:"job,omitempty"`
	Client     *ClientProfile     `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Freelancer *FreelancerProfile `gorm:"foreignKey:FreelancerID" json:"freelancer,omitempty"`
}
