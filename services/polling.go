package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/models"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// StaleAfter is how long an order stays pending before the sweep asks
	// the gateway about it.
	StaleAfter     = 15 * time.Minute
	SweepBatchSize = 50
	// RecheckGracePeriod gives the webhook a head start before a user may
	// force a status query.
	RecheckGracePeriod  = 2 * time.Minute
	gatewayQueryTimeout = 10 * time.Second
)

type SweepResult struct {
	Processed  int `json:"processed"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
}

type RecheckResult struct {
	Checked            bool               `json:"checked"`
	Status             models.OrderStatus `json:"status"`
	Outcome            Outcome            `json:"outcome,omitempty"`
	GatewayUnavailable bool               `json:"gateway_unavailable,omitempty"`
	Message            string             `json:"message,omitempty"`
}

// Poller queries the gateway for orders whose webhook never arrived.
type Poller interface {
	SweepPending(ctx context.Context) (*SweepResult, *ServiceError)
	Recheck(ctx context.Context, userID uuid.UUID, reference string) (*RecheckResult, *ServiceError)
}

type pollerImpl struct {
	orders     repository.OrderRepository
	events     repository.PaymentEventRepository
	gateway    gateway.Gateway
	reconciler Reconciler
	throttle   Throttle
	metrics    MetricsRecorder
	logger     *zap.Logger
	now        func() time.Time
}

// NewPoller creates a Poller. throttle and metrics may be nil.
func NewPoller(
	orders repository.OrderRepository,
	events repository.PaymentEventRepository,
	gw gateway.Gateway,
	reconciler Reconciler,
	throttle Throttle,
	metrics MetricsRecorder,
	logger *zap.Logger,
) Poller {
	return &pollerImpl{
		orders:     orders,
		events:     events,
		gateway:    gw,
		reconciler: reconciler,
		throttle:   throttle,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// SweepPending reconciles a batch of stale pending orders. A failure on one
// order is logged and the sweep moves on.
func (s *pollerImpl) SweepPending(ctx context.Context) (*SweepResult, *ServiceError) {
	orders, err := s.orders.FindStalePending(ctx, s.now().Add(-StaleAfter), SweepBatchSize)
	if err != nil {
		s.logger.Error("Failed to load stale pending orders", zap.Error(err))
		return nil, internal("failed to load pending orders")
	}

	res := &SweepResult{}
	for i := range orders {
		order := &orders[i]
		res.Processed++

		out, err := s.reconcileFromGateway(ctx, order)
		if err != nil {
			res.Failed++
			s.logger.Warn("Failed to reconcile pending order",
				zap.String("reference", order.Reference),
				zap.Error(err),
			)
			continue
		}
		if out.Applied() {
			res.Reconciled++
		}
	}

	s.logger.Info("Pending order sweep finished",
		zap.Int("processed", res.Processed),
		zap.Int("reconciled", res.Reconciled),
		zap.Int("failed", res.Failed),
	)
	if res.Processed > 0 {
		recordCount(s.metrics, aws_pkg.MetricPendingSwept, nil)
	}
	return res, nil
}

// Recheck is the user-triggered variant of the sweep for a single order.
func (s *pollerImpl) Recheck(ctx context.Context, userID uuid.UUID, reference string) (*RecheckResult, *ServiceError) {
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

	if order.Status != models.OrderStatusPending {
		return &RecheckResult{Status: order.Status, Message: "order is already final"}, nil
	}
	if s.now().Sub(order.CreatedAt) < RecheckGracePeriod {
		return &RecheckResult{Status: order.Status, Message: "payment confirmation is still on its way"}, nil
	}

	if s.throttle != nil {
		allowed, err := s.throttle.Allow(ctx, "recheck:"+order.ID.String())
		if err != nil {
			s.logger.Warn("Recheck throttle unavailable", zap.Error(err))
		} else if !allowed {
			return nil, &ServiceError{StatusCode: http.StatusTooManyRequests, Message: "status was checked moments ago"}
		}
	}

	out, err := s.reconcileFromGateway(ctx, order)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			s.logger.Warn("Gateway unavailable during recheck", zap.String("reference", reference), zap.Error(err))
			return &RecheckResult{
				Checked:            true,
				Status:             order.Status,
				GatewayUnavailable: true,
				Message:            "could not reach the payment provider, try again later",
			}, nil
		}
		s.logger.Error("Failed to reconcile order", zap.String("reference", reference), zap.Error(err))
		return nil, internal("failed to check payment status")
	}

	return &RecheckResult{Checked: true, Status: out.Status, Outcome: out.Outcome}, nil
}

func (s *pollerImpl) reconcileFromGateway(ctx context.Context, order *models.Order) (*ReconcileResult, error) {
	qctx, cancel := context.WithTimeout(ctx, gatewayQueryTimeout)
	defer cancel()

	tx, err := s.gateway.FindTransactionByReference(qctx, order.Reference)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return &ReconcileResult{Outcome: OutcomeIgnored, Status: order.Status, Reason: "no transaction at gateway yet"}, nil
	}

	payload, hash := pollingSnapshot(order.Reference, tx)
	exists, err := s.events.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if exists {
		return &ReconcileResult{Outcome: OutcomeDuplicate, Status: order.Status}, nil
	}

	return s.reconciler.Reconcile(ctx, ReconcileRequest{
		Order:       order,
		Transaction: *tx,
		Source:      models.EventSourcePolling,
		PayloadHash: hash,
		Payload:     payload,
	})
}

// pollingSnapshot serialises what the gateway reported so the same answer
// seen twice hashes the same.
func pollingSnapshot(reference string, tx *gateway.Transaction) ([]byte, string) {
	payload, _ := json.Marshal(struct {
		Source            string `json:"source"`
		Reference         string `json:"reference"`
		TransactionID     string `json:"transaction_id"`
		Status            string `json:"status"`
		PaymentMethodType string `json:"payment_method_type,omitempty"`
		AmountInCents     int64  `json:"amount_in_cents"`
	}{
		Source:            string(models.EventSourcePolling),
		Reference:         reference,
		TransactionID:     tx.ID,
		Status:            string(tx.Status),
		PaymentMethodType: tx.PaymentMethodType,
		AmountInCents:     tx.AmountInCents,
	})
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:])
}
