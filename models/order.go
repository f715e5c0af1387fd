package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the persisted lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusApproved   OrderStatus = "approved"
	OrderStatusDeclined   OrderStatus = "declined"
	OrderStatusVoided     OrderStatus = "voided"
	OrderStatusRefunded   OrderStatus = "refunded"
	OrderStatusChargeback OrderStatus = "chargeback"

	// OrderStatusError is produced by the status mapper for the gateway's
	// ERROR status. It is never written to an order row.
	OrderStatusError OrderStatus = "error"
)

const DefaultCurrency = "COP"

// Order is one checkout attempt. Amounts are in minor units (cents).
type Order struct {
	ID             uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Reference      string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference"`
	UserID         uuid.UUID   `gorm:"type:uuid;not null;index" json:"user_id"`
	CustomerName   string      `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail  string      `gorm:"type:varchar(255);not null" json:"customer_email"`
	CustomerPhone  string      `gorm:"type:varchar(50)" json:"customer_phone,omitempty"`
	Subtotal       int64       `gorm:"not null" json:"subtotal"`
	DiscountAmount int64       `gorm:"not null;default:0" json:"discount_amount"`
	Total          int64       `gorm:"not null" json:"total"`
	Currency       string      `gorm:"type:varchar(3);not null;default:'COP'" json:"currency"`
	Status         OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CartHash       string      `gorm:"type:varchar(64);not null;index" json:"cart_hash"`
	// IdempotencyKey is only set while the order is pending.
	IdempotencyKey *string    `gorm:"type:varchar(160);uniqueIndex" json:"-"`
	TransactionID  *string    `gorm:"type:varchar(100)" json:"transaction_id,omitempty"`
	PaymentMethod  *string    `gorm:"type:varchar(50)" json:"payment_method,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

// OrderItem is an immutable line item snapshot. CourseID is nulled if the
// course is later deleted.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"order_id"`
	CourseID    *uuid.UUID `gorm:"type:uuid;index" json:"course_id,omitempty"`
	CourseTitle string     `gorm:"type:varchar(255);not null" json:"course_title"`
	Price       int64      `gorm:"not null" json:"price"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
