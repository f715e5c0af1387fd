package repository

import (
	"context"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentEventRepository is the append-only payment signal ledger.
type PaymentEventRepository interface {
	ExistsByHash(ctx context.Context, payloadHash string) (bool, error)
	Create(ctx context.Context, event *models.PaymentEvent) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error)
}

// GormPaymentEventRepository implements PaymentEventRepository using GORM.
type GormPaymentEventRepository struct {
	db *gorm.DB
}

func NewGormPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

func (r *GormPaymentEventRepository) ExistsByHash(ctx context.Context, payloadHash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentEvent{}).
		Where("payload_hash = ?", payloadHash).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create appends a ledger row. A repeated payload hash returns ErrDuplicate.
func (r *GormPaymentEventRepository) Create(ctx context.Context, event *models.PaymentEvent) error {
	return translate(r.db.WithContext(ctx).Create(event).Error)
}

func (r *GormPaymentEventRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("processed_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
