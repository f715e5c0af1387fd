package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Transition is everything a single status change writes. It is committed
// in one database transaction guarded by a compare-and-swap on From.
type Transition struct {
	OrderID       uuid.UUID
	UserID        uuid.UUID
	From          models.OrderStatus
	To            models.OrderStatus
	TransactionID *string
	PaymentMethod *string
	At            time.Time

	Enrollments []models.Enrollment
	ClearCart   bool
	Event       *models.PaymentEvent
	Outbox      *models.EmailOutbox
}

// OrderRepository defines data-access operations for orders.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	FindLatestPending(ctx context.Context, userID uuid.UUID, since time.Time) (*models.Order, error)
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error)
	Void(ctx context.Context, id uuid.UUID) error
	ApplyTransition(ctx context.Context, t *Transition) error
}

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts the order and its items atomically. A clash on reference or
// idempotency key returns ErrDuplicate.
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

// CreateItems inserts items for an order whose items went missing.
func (r *GormOrderRepository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&items).Error)
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&o, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (r *GormOrderRepository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	var o models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("reference = ?", reference).
		First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// FindLatestPending returns the newest pending order the user created after
// since, or nil when there is none.
func (r *GormOrderRepository) FindLatestPending(ctx context.Context, userID uuid.UUID, since time.Time) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, models.OrderStatusPending, since).
		Order("created_at DESC").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// FindStalePending returns up to limit pending orders created before
// olderThan, oldest first.
func (r *GormOrderRepository) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("status = ? AND created_at < ?", models.OrderStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Void moves a pending order to voided. ErrStatusConflict means the order
// had already left pending.
func (r *GormOrderRepository) Void(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":          models.OrderStatusVoided,
			"idempotency_key": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// ApplyTransition writes the status change, enrollments, cart clear, ledger
// entry and outbox entry in one transaction. The order update only matches
// while the row still holds t.From, so exactly one concurrent writer wins;
// the others get ErrStatusConflict and nothing is written.
func (r *GormOrderRepository) ApplyTransition(ctx context.Context, t *Transition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":          t.To,
			"idempotency_key": nil,
			"updated_at":      t.At,
		}
		if t.TransactionID != nil {
			updates["transaction_id"] = *t.TransactionID
		}
		if t.PaymentMethod != nil {
			updates["payment_method"] = *t.PaymentMethod
		}
		if t.To == models.OrderStatusApproved {
			updates["approved_at"] = t.At
		}

		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", t.OrderID, t.From).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("update order status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrStatusConflict
		}

		if len(t.Enrollments) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
				DoNothing: true,
			}).Create(&t.Enrollments).Error; err != nil {
				return fmt.Errorf("upsert enrollments: %w", err)
			}
		}

		if t.ClearCart {
			if err := tx.Where("user_id = ?", t.UserID).Delete(&models.CartItem{}).Error; err != nil {
				return fmt.Errorf("clear cart: %w", err)
			}
		}

		if t.Event != nil {
			if err := tx.Create(t.Event).Error; err != nil {
				if isUniqueViolation(err) {
					return ErrDuplicate
				}
				return fmt.Errorf("insert payment event: %w", err)
			}
		}

		if t.Outbox != nil {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "order_id"}, {Name: "email_type"}},
				DoNothing: true,
			}).Create(t.Outbox).Error; err != nil {
				return fmt.Errorf("arm outbox: %w", err)
			}
		}
		return nil
	})
}
