package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/models"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Outcome describes what a reconciliation attempt did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeRejected  Outcome = "rejected"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// ReconcileRequest is one payment signal to apply to an order.
type ReconcileRequest struct {
	Order       *models.Order
	Transaction gateway.Transaction
	// UserID is only consulted when the order carries no owner.
	UserID      *uuid.UUID
	Source      models.EventSource
	PayloadHash string
	Payload     []byte
}

type ReconcileResult struct {
	Outcome Outcome
	Status  models.OrderStatus
	Reason  string
}

func (r *ReconcileResult) Applied() bool { return r != nil && r.Outcome == OutcomeApplied }

// Reconciler applies gateway statuses to orders. Webhooks, the polling sweep
// and manual rechecks all go through it.
type Reconciler interface {
	Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error)
}

type reconcilerImpl struct {
	orders      repository.OrderRepository
	events      repository.PaymentEventRepository
	snsClient   aws_pkg.SNSPublisher
	snsTopicArn string
	metrics     MetricsRecorder
	logger      *zap.Logger
	now         func() time.Time
}

// NewReconciler creates a Reconciler. snsClient and metrics may be nil.
func NewReconciler(
	orders repository.OrderRepository,
	events repository.PaymentEventRepository,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) Reconciler {
	return &reconcilerImpl{
		orders:      orders,
		events:      events,
		snsClient:   snsClient,
		snsTopicArn: snsTopicArn,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *reconcilerImpl) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	order := req.Order
	if order == nil {
		return nil, errors.New("reconcile: nil order")
	}

	target, ok := MapExternalStatus(req.Transaction.Status)
	if !ok || target == models.OrderStatusError {
		s.logger.Info("Ignoring unactionable gateway status",
			zap.String("reference", order.Reference),
			zap.String("external_status", string(req.Transaction.Status)),
			zap.String("source", string(req.Source)),
		)
		return &ReconcileResult{
			Outcome: OutcomeIgnored,
			Status:  order.Status,
			Reason:  fmt.Sprintf("gateway status %q is not actionable", req.Transaction.Status),
		}, nil
	}

	now := s.now()
	event := s.newEvent(req, target, now)

	if !IsValidTransition(order.Status, target) {
		return s.reject(ctx, order, event, order.Status,
			fmt.Sprintf("invalid transition %s -> %s", order.Status, target))
	}

	userID := order.UserID
	if userID == uuid.Nil && req.UserID != nil {
		userID = *req.UserID
	}

	event.IsApplied = true
	t := &repository.Transition{
		OrderID:       order.ID,
		UserID:        userID,
		From:          order.Status,
		To:            target,
		TransactionID: optString(req.Transaction.ID),
		PaymentMethod: optString(req.Transaction.PaymentMethodType),
		At:            now,
		Event:         event,
	}
	if target == models.OrderStatusApproved {
		t.Enrollments = purchaseEnrollments(order, userID)
		t.ClearCart = true
		t.Outbox = &models.EmailOutbox{
			OrderID:     order.ID,
			EmailType:   models.EmailTypePurchaseConfirmation,
			Status:      models.OutboxStatusPending,
			NextRetryAt: now,
		}
	}

	err := s.orders.ApplyTransition(ctx, t)
	switch {
	case errors.Is(err, repository.ErrStatusConflict):
		current := s.currentStatus(ctx, order)
		return s.reject(ctx, order, s.newEvent(req, target, now), current,
			fmt.Sprintf("order moved to %s concurrently; %s -> %s not applied", current, t.From, target))
	case errors.Is(err, repository.ErrDuplicate):
		return &ReconcileResult{Outcome: OutcomeDuplicate, Status: order.Status}, nil
	case err != nil:
		return nil, fmt.Errorf("apply transition: %w", err)
	}

	previous := order.Status
	order.Status = target
	order.TransactionID = t.TransactionID
	order.PaymentMethod = t.PaymentMethod
	order.IdempotencyKey = nil
	if target == models.OrderStatusApproved {
		order.ApprovedAt = &now
	}

	s.logger.Info("Payment transition applied",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", order.Reference),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
		zap.String("source", string(req.Source)),
		zap.Int("enrollments", len(t.Enrollments)),
	)

	s.publishStatusChanged(ctx, order, req.Source, now)
	if target == models.OrderStatusApproved {
		s.recordMetric(aws_pkg.MetricPaymentSucceeded, req.Source)
	} else {
		s.recordMetric(aws_pkg.MetricPaymentFailed, req.Source)
	}

	return &ReconcileResult{Outcome: OutcomeApplied, Status: target}, nil
}

func (s *reconcilerImpl) newEvent(req ReconcileRequest, target models.OrderStatus, now time.Time) *models.PaymentEvent {
	ev := &models.PaymentEvent{
		OrderID:        req.Order.ID,
		Source:         req.Source,
		ExternalStatus: string(req.Transaction.Status),
		MappedStatus:   target,
		TransactionID:  optString(req.Transaction.ID),
		PayloadHash:    req.PayloadHash,
		ProcessedAt:    now,
	}
	if len(req.Payload) > 0 && json.Valid(req.Payload) {
		ev.Payload = datatypes.JSON(req.Payload)
	}
	return ev
}

// reject records a signal that did not change the order.
func (s *reconcilerImpl) reject(ctx context.Context, order *models.Order, event *models.PaymentEvent, status models.OrderStatus, reason string) (*ReconcileResult, error) {
	event.IsApplied = false
	event.Reason = &reason

	if err := s.events.Create(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return &ReconcileResult{Outcome: OutcomeDuplicate, Status: status}, nil
		}
		return nil, fmt.Errorf("record rejected payment event: %w", err)
	}

	s.logger.Info("Payment transition rejected",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", order.Reference),
		zap.String("source", string(event.Source)),
		zap.String("reason", reason),
	)
	s.recordMetric(aws_pkg.MetricPaymentTransitionRejected, event.Source)

	return &ReconcileResult{Outcome: OutcomeRejected, Status: status, Reason: reason}, nil
}

func (s *reconcilerImpl) currentStatus(ctx context.Context, order *models.Order) models.OrderStatus {
	fresh, err := s.orders.FindByID(ctx, order.ID)
	if err != nil {
		s.logger.Warn("Failed to reload order after lost update",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return order.Status
	}
	*order = *fresh
	return fresh.Status
}

func (s *reconcilerImpl) publishStatusChanged(ctx context.Context, order *models.Order, source models.EventSource, at time.Time) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		return
	}

	evt := models.PaymentStatusChangedEvent{
		EventType: models.EventTypePaymentStatusChanged,
		OrderID:   order.ID.String(),
		Reference: order.Reference,
		UserID:    order.UserID.String(),
		Status:    order.Status,
		Total:     order.Total,
		Currency:  order.Currency,
		Source:    source,
		Timestamp: at.UTC(),
	}
	if order.TransactionID != nil {
		evt.TransactionID = *order.TransactionID
	}

	payload, _ := json.Marshal(evt)
	if err := s.snsClient.Publish(ctx, s.snsTopicArn, payload); err != nil {
		s.logger.Error("Failed to publish payment status event",
			zap.String("order_id", evt.OrderID),
			zap.String("status", string(evt.Status)),
			zap.Error(err),
		)
	}
}

func (s *reconcilerImpl) recordMetric(name string, source models.EventSource) {
	recordCount(s.metrics, name, map[string]string{"Source": string(source)})
}

// purchaseEnrollments builds one enrollment per item that still points at a
// course.
func purchaseEnrollments(order *models.Order, userID uuid.UUID) []models.Enrollment {
	enrollments := make([]models.Enrollment, 0, len(order.Items))
	seen := make(map[uuid.UUID]bool, len(order.Items))
	for _, item := range order.Items {
		if item.CourseID == nil || seen[*item.CourseID] {
			continue
		}
		seen[*item.CourseID] = true
		orderID := order.ID
		enrollments = append(enrollments, models.Enrollment{
			UserID:   userID,
			CourseID: *item.CourseID,
			Source:   models.EnrollmentSourcePurchase,
			OrderID:  &orderID,
		})
	}
	return enrollments
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
