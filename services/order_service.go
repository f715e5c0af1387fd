package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/models"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentView is how the return page should present an order.
type PaymentView string

const (
	ViewProcessing    PaymentView = "processing"
	ViewSuccess       PaymentView = "success"
	ViewDeclined      PaymentView = "declined"
	ViewInformational PaymentView = "informational"
)

type PaymentStatusItem struct {
	CourseID *uuid.UUID `json:"course_id,omitempty"`
	Title    string     `json:"title"`
	Price    int64      `json:"price"`
}

type PaymentStatusView struct {
	Reference  string              `json:"reference"`
	Status     models.OrderStatus  `json:"status"`
	View       PaymentView         `json:"view"`
	Message    string              `json:"message"`
	Total      int64               `json:"total"`
	Currency   string              `json:"currency"`
	Items      []PaymentStatusItem `json:"items"`
	ApprovedAt *time.Time          `json:"approved_at,omitempty"`
	CanRecheck bool                `json:"can_recheck"`
	RetryURL   string              `json:"retry_url,omitempty"`
	SupportURL string              `json:"support_url,omitempty"`
}

// OrderEvents is the audit view of one order.
type OrderEvents struct {
	Order  *models.Order         `json:"order"`
	Events []models.PaymentEvent `json:"events"`
	Emails []models.EmailOutbox  `json:"emails"`
}

type OrderService interface {
	GetPaymentStatus(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatusView, *ServiceError)
	ListPaymentEvents(ctx context.Context, orderID uuid.UUID) (*OrderEvents, *ServiceError)
}

type orderServiceImpl struct {
	orders      repository.OrderRepository
	events      repository.PaymentEventRepository
	outbox      repository.OutboxRepository
	logger      *zap.Logger
	frontendURL string
	now         func() time.Time
}

func NewOrderService(
	orders repository.OrderRepository,
	events repository.PaymentEventRepository,
	outbox repository.OutboxRepository,
	logger *zap.Logger,
	frontendURL string,
) OrderService {
	return &orderServiceImpl{
		orders:      orders,
		events:      events,
		outbox:      outbox,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		now:         time.Now,
	}
}

// GetPaymentStatus backs the page the gateway redirects the buyer to.
func (s *orderServiceImpl) GetPaymentStatus(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatusView, *ServiceError) {
	order, err := s.orders.FindByReference(ctx, reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("order not found")
		}
		s.logger.Error("Failed to load order", zap.String("reference", reference), zap.Error(err))
		return nil, internal("failed to load order")
	}
	if order.UserID != userID {
		return nil, notFound("order not found")
	}

	view := &PaymentStatusView{
		Reference:  order.Reference,
		Status:     order.Status,
		Total:      order.Total,
		Currency:   order.Currency,
		ApprovedAt: order.ApprovedAt,
		Items:      make([]PaymentStatusItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, PaymentStatusItem{CourseID: item.CourseID, Title: item.CourseTitle, Price: item.Price})
	}

	switch order.Status {
	case models.OrderStatusPending:
		view.View = ViewProcessing
		view.Message = "We are waiting for the payment provider to confirm your payment."
		view.CanRecheck = s.now().Sub(order.CreatedAt) >= RecheckGracePeriod
	case models.OrderStatusApproved:
		view.View = ViewSuccess
		view.Message = "Payment approved. Your courses are ready."
	case models.OrderStatusDeclined:
		view.View = ViewDeclined
		view.Message = "The payment was declined. No charge was made."
		view.RetryURL = s.frontendURL + "/cart"
		view.SupportURL = s.supportURL(order.Reference)
	default:
		view.View = ViewInformational
		view.Message = "This order is " + string(order.Status) + "."
		view.SupportURL = s.supportURL(order.Reference)
	}
	return view, nil
}

func (s *orderServiceImpl) ListPaymentEvents(ctx context.Context, orderID uuid.UUID) (*OrderEvents, *ServiceError) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("order not found")
		}
		s.logger.Error("Failed to load order", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, internal("failed to load order")
	}

	events, err := s.events.FindByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load payment events", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, internal("failed to load payment events")
	}

	emails, err := s.outbox.FindByOrderID(ctx, orderID)
	if err != nil {
		s.logger.Error("Failed to load outbox entries", zap.String("order_id", orderID.String()), zap.Error(err))
		return nil, internal("failed to load outbox entries")
	}

	return &OrderEvents{Order: order, Events: events, Emails: emails}, nil
}

func (s *orderServiceImpl) supportURL(reference string) string {
	return s.frontendURL + "/support?reference=" + url.QueryEscape(reference)
}
