package repository

import (
	"context"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRepository manages queued emails.
type OutboxRepository interface {
	FindDue(ctx context.Context, now time.Time, limit int) ([]models.EmailOutbox, error)
	Claim(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, attempts int, status string, nextRetryAt time.Time, lastErr string) error
	Rearm(ctx context.Context, orderID uuid.UUID, emailType string, now time.Time) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.EmailOutbox, error)
}

type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) OutboxRepository {
	return &GormOutboxRepository{db: db}
}

// FindDue returns pending entries whose retry time has passed.
func (r *GormOutboxRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]models.EmailOutbox, error) {
	var entries []models.EmailOutbox
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", models.OutboxStatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Claim leases an entry by pushing its retry time past now. Only one of
// several overlapping sweeps can match the row.
func (r *GormOutboxRepository) Claim(ctx context.Context, id uuid.UUID, now, leaseUntil time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EmailOutbox{}).
		Where("id = ? AND status = ? AND next_retry_at <= ?", id, models.OutboxStatusPending, now).
		Update("next_retry_at", leaseUntil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormOutboxRepository) MarkSent(ctx context.Context, id uuid.UUID, messageID string, sentAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":              models.OutboxStatusSent,
			"attempts":            gorm.Expr("attempts + 1"),
			"provider_message_id": messageID,
			"sent_at":             sentAt,
			"last_error":          nil,
		}).Error
}

func (r *GormOutboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, attempts int, status string, nextRetryAt time.Time, lastErr string) error {
	return r.db.WithContext(ctx).
		Model(&models.EmailOutbox{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        status,
			"attempts":      attempts,
			"next_retry_at": nextRetryAt,
			"last_error":    lastErr,
		}).Error
}

// Rearm queues the email again from scratch, creating the entry if needed.
func (r *GormOutboxRepository) Rearm(ctx context.Context, orderID uuid.UUID, emailType string, now time.Time) error {
	entry := models.EmailOutbox{
		OrderID:     orderID,
		EmailType:   emailType,
		Status:      models.OutboxStatusPending,
		NextRetryAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "email_type"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":        models.OutboxStatusPending,
			"attempts":      0,
			"next_retry_at": now,
			"last_error":    nil,
			"updated_at":    now,
		}),
	}).Create(&entry).Error
}

func (r *GormOutboxRepository) FindByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.EmailOutbox, error) {
	var entries []models.EmailOutbox
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
