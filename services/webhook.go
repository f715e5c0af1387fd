package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/models"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"

	"go.uber.org/zap"
)

// WebhookResult is the acknowledgement body returned to the gateway.
type WebhookResult struct {
	Received  bool `json:"received"`
	Applied   bool `json:"applied"`
	Duplicate bool `json:"duplicate,omitempty"`
}

type WebhookService interface {
	HandleEvent(ctx context.Context, body []byte, remoteIP string) (*WebhookResult, *ServiceError)
}

type webhookServiceImpl struct {
	orders       repository.OrderRepository
	events       repository.PaymentEventRepository
	reconciler   Reconciler
	eventsSecret string
	metrics      MetricsRecorder
	logger       *zap.Logger
}

func NewWebhookService(
	orders repository.OrderRepository,
	events repository.PaymentEventRepository,
	reconciler Reconciler,
	eventsSecret string,
	metrics MetricsRecorder,
	logger *zap.Logger,
) WebhookService {
	return &webhookServiceImpl{
		orders:       orders,
		events:       events,
		reconciler:   reconciler,
		eventsSecret: eventsSecret,
		metrics:      metrics,
		logger:       logger,
	}
}

// HandleEvent verifies and applies one webhook delivery. Anything the gateway
// should not retry is acknowledged with Received set.
func (s *webhookServiceImpl) HandleEvent(ctx context.Context, body []byte, remoteIP string) (*WebhookResult, *ServiceError) {
	event, err := gateway.ParseEvent(body)
	if err != nil {
		s.logger.Warn("Malformed webhook payload", zap.String("remote_ip", remoteIP), zap.Error(err))
		return nil, badRequest("malformed payload")
	}

	if err := event.VerifySignature(s.eventsSecret); err != nil {
		s.logger.Warn("Webhook signature rejected",
			zap.String("remote_ip", remoteIP),
			zap.String("event", event.Type),
			zap.Error(err),
		)
		recordCount(s.metrics, aws_pkg.MetricWebhookSignatureInvalid, nil)
		return nil, &ServiceError{StatusCode: http.StatusUnauthorized, Message: "invalid signature"}
	}

	ack := &WebhookResult{Received: true}
	if !event.IsTransactionEvent() {
		s.logger.Info("Ignoring webhook event type", zap.String("event", event.Type))
		return ack, nil
	}

	tx, err := event.Transaction()
	if err != nil {
		s.logger.Warn("Webhook without usable transaction", zap.Error(err))
		return nil, badRequest("missing transaction data")
	}

	if _, ok := MapExternalStatus(tx.Status); !ok {
		s.logger.Info("Ignoring unknown gateway status",
			zap.String("reference", tx.Reference),
			zap.String("external_status", string(tx.Status)),
		)
		return ack, nil
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	seen, err := s.events.ExistsByHash(ctx, hash)
	if err != nil {
		s.logger.Error("Failed to check webhook hash", zap.String("reference", tx.Reference), zap.Error(err))
		return nil, internal("failed to process webhook")
	}
	if seen {
		s.logger.Info("Duplicate webhook delivery", zap.String("reference", tx.Reference))
		recordCount(s.metrics, aws_pkg.MetricWebhookDuplicates, nil)
		ack.Duplicate = true
		return ack, nil
	}

	order, err := s.orders.FindByReference(ctx, tx.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Webhook for unknown order", zap.String("reference", tx.Reference))
			return nil, badRequest("unknown order reference")
		}
		s.logger.Error("Failed to load order", zap.String("reference", tx.Reference), zap.Error(err))
		return nil, internal("failed to process webhook")
	}

	res, err := s.reconciler.Reconcile(ctx, ReconcileRequest{
		Order:       order,
		Transaction: *tx,
		Source:      models.EventSourceWebhook,
		PayloadHash: hash,
		Payload:     body,
	})
	if err != nil {
		s.logger.Error("Failed to reconcile webhook", zap.String("reference", tx.Reference), zap.Error(err))
		return nil, internal("failed to process webhook")
	}

	ack.Applied = res.Applied()
	if res.Outcome == OutcomeDuplicate {
		ack.Duplicate = true
		recordCount(s.metrics, aws_pkg.MetricWebhookDuplicates, nil)
	}
	return ack, nil
}
