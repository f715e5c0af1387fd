package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EventSource identifies which path delivered a payment signal.
type EventSource string

const (
	EventSourceWebhook EventSource = "webhook"
	EventSourcePolling EventSource = "polling"
)

// PaymentEvent is an append-only ledger row, one per distinct inbound
// payment signal. PayloadHash is the deduplication key.
type PaymentEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"order_id"`
	Source         EventSource    `gorm:"type:varchar(20);not null" json:"source"`
	ExternalStatus string         `gorm:"type:varchar(50);not null" json:"external_status"`
	MappedStatus   OrderStatus    `gorm:"type:varchar(20)" json:"mapped_status"`
	TransactionID  *string        `gorm:"type:varchar(100)" json:"transaction_id,omitempty"`
	PayloadHash    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"payload_hash"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload,omitempty"`
	IsApplied      bool           `gorm:"not null;default:false" json:"is_applied"`
	Reason         *string        `gorm:"type:text" json:"reason,omitempty"`
	ProcessedAt    time.Time      `gorm:"not null" json:"processed_at"`
}

// PaymentStatusChangedEvent is published after a transition is applied.
type PaymentStatusChangedEvent struct {
	EventType     string      `json:"event_type"`
	OrderID       string      `json:"order_id"`
	Reference     string      `json:"reference"`
	UserID        string      `json:"user_id"`
	Status        OrderStatus `json:"status"`
	TransactionID string      `json:"transaction_id,omitempty"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	Source        EventSource `json:"source"`
	Timestamp     time.Time   `json:"timestamp"`
}

const EventTypePaymentStatusChanged = "payment.status_changed"
