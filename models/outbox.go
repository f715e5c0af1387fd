package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
	OutboxStatusFailed  = "failed"

	EmailTypePurchaseConfirmation = "purchase_confirmation"
)

// EmailOutbox is one queued email per (order, email type).
type EmailOutbox struct {
	ID                uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_outbox_order_type" json:"order_id"`
	EmailType         string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_outbox_order_type" json:"email_type"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	NextRetryAt       time.Time  `gorm:"not null;index" json:"next_retry_at"`
	LastError         *string    `gorm:"type:text" json:"last_error,omitempty"`
	ProviderMessageID *string    `gorm:"type:varchar(255)" json:"provider_message_id,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EmailOutbox) TableName() string { return "email_outbox" }
