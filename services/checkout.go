package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/models"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendingReuseWindow is how long a pending order with the same cart may be
// handed back instead of creating a new one.
const PendingReuseWindow = 5 * time.Minute

type CheckoutResult struct {
	Order        *models.Order
	CheckoutURL  string
	Reused       bool
	FreeEnrolled int
	// EmptyCart is set when there was nothing to buy or enroll in.
	EmptyCart bool
}

// NeedsPayment reports whether the caller should be sent to the gateway.
func (r *CheckoutResult) NeedsPayment() bool { return r.Order != nil && r.CheckoutURL != "" }

type CheckoutService interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, *ServiceError)
}

type checkoutServiceImpl struct {
	orders      repository.OrderRepository
	catalog     repository.CatalogRepository
	gateway     gateway.Gateway
	metrics     MetricsRecorder
	logger      *zap.Logger
	frontendURL string
	now         func() time.Time
}

func NewCheckoutService(
	orders repository.OrderRepository,
	catalog repository.CatalogRepository,
	gw gateway.Gateway,
	metrics MetricsRecorder,
	logger *zap.Logger,
	frontendURL string,
) CheckoutService {
	return &checkoutServiceImpl{
		orders:      orders,
		catalog:     catalog,
		gateway:     gw,
		metrics:     metrics,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

func (s *checkoutServiceImpl) Checkout(ctx context.Context, userID uuid.UUID) (*CheckoutResult, *ServiceError) {
	courses, err := s.catalog.FindCartCourses(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load cart", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, internal("failed to load cart")
	}

	var paid []models.Course
	var freeIDs []uuid.UUID
	for _, c := range courses {
		if c.IsFree() {
			freeIDs = append(freeIDs, c.ID)
		} else {
			paid = append(paid, c)
		}
	}

	result := &CheckoutResult{}
	if len(freeIDs) > 0 {
		if err := s.catalog.EnrollFree(ctx, userID, freeIDs); err != nil {
			s.logger.Error("Failed to enroll in free courses", zap.String("user_id", userID.String()), zap.Error(err))
			return nil, internal("failed to enroll in free courses")
		}
		result.FreeEnrolled = len(freeIDs)
		s.logger.Info("Enrolled in free courses", zap.String("user_id", userID.String()), zap.Int("count", len(freeIDs)))
	}

	if len(paid) == 0 {
		result.EmptyCart = len(freeIDs) == 0
		return result, nil
	}

	order, reused, svcErr := s.prepareOrder(ctx, userID, paid)
	if svcErr != nil {
		return nil, svcErr
	}

	checkoutURL, err := s.gateway.CheckoutURL(order.Reference, order.Total, order.Currency, s.returnURL(order.Reference))
	if err != nil {
		s.logger.Error("Failed to build checkout url", zap.String("reference", order.Reference), zap.Error(err))
		return nil, internal("failed to build checkout url")
	}

	result.Order = order
	result.CheckoutURL = checkoutURL
	result.Reused = reused

	if reused {
		recordCount(s.metrics, aws_pkg.MetricOrdersReused, nil)
	} else {
		recordCount(s.metrics, aws_pkg.MetricOrdersCreated, nil)
	}
	return result, nil
}

// prepareOrder returns the pending order the user should pay for, reusing a
// recent one when the cart has not changed.
func (s *checkoutServiceImpl) prepareOrder(ctx context.Context, userID uuid.UUID, paid []models.Course) (*models.Order, bool, *ServiceError) {
	now := s.now()
	hash := ComputeCartHash(paid)
	var subtotal int64
	for _, c := range paid {
		subtotal += c.Price
	}

	existing, err := s.orders.FindLatestPending(ctx, userID, now.Add(-PendingReuseWindow))
	if err != nil {
		s.logger.Error("Failed to look up pending order", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, false, internal("failed to create order")
	}

	if existing != nil {
		if existing.CartHash == hash && existing.Total == subtotal {
			if svcErr := s.ensureItems(ctx, existing, paid); svcErr != nil {
				return nil, false, svcErr
			}
			s.logger.Info("Reusing pending order",
				zap.String("reference", existing.Reference),
				zap.String("user_id", userID.String()),
			)
			return existing, true, nil
		}

		if err := s.orders.Void(ctx, existing.ID); err != nil && !errors.Is(err, repository.ErrStatusConflict) {
			s.logger.Error("Failed to void stale order", zap.String("reference", existing.Reference), zap.Error(err))
			return nil, false, internal("failed to create order")
		}
		s.logger.Info("Voided pending order for a changed cart",
			zap.String("reference", existing.Reference),
			zap.String("user_id", userID.String()),
		)
	}

	profile, err := s.catalog.FindProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, badRequest("customer profile not found")
		}
		s.logger.Error("Failed to load profile", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, false, internal("failed to create order")
	}

	id := uuid.New()
	key := idempotencyKey(userID, hash, now)
	order := &models.Order{
		ID:             id,
		Reference:      newReference(id, now),
		UserID:         userID,
		CustomerName:   profile.FullName,
		CustomerEmail:  profile.Email,
		CustomerPhone:  profile.Phone,
		Subtotal:       subtotal,
		DiscountAmount: 0,
		Total:          subtotal,
		Currency:       models.DefaultCurrency,
		Status:         models.OrderStatusPending,
		CartHash:       hash,
		IdempotencyKey: &key,
		Items:          buildItems(id, paid),
	}

	if err := s.orders.Create(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// a concurrent request for the same cart got there first
			winner, findErr := s.orders.FindLatestPending(ctx, userID, now.Add(-PendingReuseWindow))
			if findErr == nil && winner != nil && winner.CartHash == hash {
				return winner, true, nil
			}
		}
		s.logger.Error("Failed to create order", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, false, internal("failed to create order")
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", order.Reference),
		zap.Int64("total", order.Total),
		zap.Int("items", len(order.Items)),
	)
	return order, false, nil
}

// ensureItems recreates the line items of a reused order that lost them.
func (s *checkoutServiceImpl) ensureItems(ctx context.Context, order *models.Order, paid []models.Course) *ServiceError {
	if len(order.Items) > 0 {
		return nil
	}
	items := buildItems(order.ID, paid)
	if err := s.orders.CreateItems(ctx, items); err != nil {
		s.logger.Error("Failed to recreate order items", zap.String("reference", order.Reference), zap.Error(err))
		return internal("failed to create order")
	}
	order.Items = items
	s.logger.Warn("Recreated missing order items", zap.String("reference", order.Reference), zap.Int("items", len(items)))
	return nil
}

func (s *checkoutServiceImpl) returnURL(reference string) string {
	return s.frontendURL + "/payment/return?reference=" + url.QueryEscape(reference)
}

// ComputeCartHash is the deterministic content hash of a cart: courses sorted
// by id, "id:price" pairs joined with "|", SHA-256 hex.
func ComputeCartHash(courses []models.Course) string {
	sorted := make([]models.Course, len(courses))
	copy(sorted, courses)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID.String() < sorted[j].ID.String()
	})

	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = fmt.Sprintf("%s:%d", c.ID, c.Price)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func buildItems(orderID uuid.UUID, courses []models.Course) []models.OrderItem {
	items := make([]models.OrderItem, len(courses))
	for i, c := range courses {
		courseID := c.ID
		items[i] = models.OrderItem{
			OrderID:     orderID,
			CourseID:    &courseID,
			CourseTitle: c.Title,
			Price:       c.Price,
		}
	}
	return items
}

func newReference(id uuid.UUID, now time.Time) string {
	return "ORD-" + now.UTC().Format("20060102-150405") + "-" + id.String()[:8]
}

// idempotencyKey collides for the same user and cart inside one reuse
// window bucket, so concurrent checkouts cannot both insert.
func idempotencyKey(userID uuid.UUID, cartHash string, now time.Time) string {
	bucket := now.Unix() / int64(PendingReuseWindow/time.Second)
	return fmt.Sprintf("%s:%s:%d", userID, cartHash, bucket)
}
