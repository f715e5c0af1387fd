package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/JuanCarJ/studioz-academy-sub000/models"
	aws_pkg "github.com/JuanCarJ/studioz-academy-sub000/pkg/aws"
	"github.com/JuanCarJ/studioz-academy-sub000/repository"
	"github.com/JuanCarJ/studioz-academy-sub000/sender"
	"github.com/JuanCarJ/studioz-academy-sub000/templates"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RetrySchedule is the wait after the 1st, 2nd, ... failed attempt. The
// entry is marked failed once MaxEmailAttempts attempts have failed.
var RetrySchedule = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
}

var MaxEmailAttempts = len(RetrySchedule) + 1

const (
	OutboxBatchSize = 20
	// outboxClaimLease keeps other senders off an entry while it is being
	// delivered.
	outboxClaimLease = 5 * time.Minute
	maxErrorLength   = 500
)

type OutboxSendResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// NotificationService drains the email outbox.
type NotificationService interface {
	SendDue(ctx context.Context) (*OutboxSendResult, *ServiceError)
	Resend(ctx context.Context, orderID uuid.UUID) *ServiceError
}

type notificationServiceImpl struct {
	outbox      repository.OutboxRepository
	orders      repository.OrderRepository
	emailSender sender.EmailSender
	metrics     MetricsRecorder
	logger      *zap.Logger
	frontendURL string
	now         func() time.Time
}

func NewNotificationService(
	outbox repository.OutboxRepository,
	orders repository.OrderRepository,
	emailSender sender.EmailSender,
	metrics MetricsRecorder,
	logger *zap.Logger,
	frontendURL string,
) NotificationService {
	return &notificationServiceImpl{
		outbox:      outbox,
		orders:      orders,
		emailSender: emailSender,
		metrics:     metrics,
		logger:      logger,
		frontendURL: frontendURL,
		now:         time.Now,
	}
}

func (s *notificationServiceImpl) SendDue(ctx context.Context) (*OutboxSendResult, *ServiceError) {
	now := s.now()
	entries, err := s.outbox.FindDue(ctx, now, OutboxBatchSize)
	if err != nil {
		s.logger.Error("Failed to load due outbox entries", zap.Error(err))
		return nil, internal("failed to load outbox")
	}

	res := &OutboxSendResult{}
	for i := range entries {
		entry := &entries[i]
		res.Processed++

		claimed, err := s.outbox.Claim(ctx, entry.ID, now, now.Add(outboxClaimLease))
		if err != nil {
			res.Failed++
			s.logger.Error("Failed to claim outbox entry", zap.String("outbox_id", entry.ID.String()), zap.Error(err))
			continue
		}
		if !claimed {
			res.Skipped++
			continue
		}

		if err := s.deliver(ctx, entry); err != nil {
			res.Failed++
			s.recordFailure(ctx, entry, err)
			continue
		}
		res.Sent++
	}

	if res.Processed > 0 {
		s.logger.Info("Outbox sweep finished",
			zap.Int("processed", res.Processed),
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

func (s *notificationServiceImpl) deliver(ctx context.Context, entry *models.EmailOutbox) error {
	order, err := s.orders.FindByID(ctx, entry.OrderID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}

	var subject, body string
	switch entry.EmailType {
	case models.EmailTypePurchaseConfirmation:
		subject, body, err = templates.RenderPurchaseConfirmation(order, s.frontendURL)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported email type %q", entry.EmailType)
	}

	result, err := s.emailSender.SendEmail(ctx, order.CustomerEmail, subject, body)
	if err != nil {
		return err
	}
	if result.MessageID == "" {
		return errors.New("email provider returned no message id")
	}

	sentAt := result.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	if err := s.outbox.MarkSent(ctx, entry.ID, result.MessageID, sentAt); err != nil {
		// the mail is out; the claim lease expiring would send it again
		s.logger.Error("Failed to mark outbox entry sent",
			zap.String("outbox_id", entry.ID.String()),
			zap.String("message_id", result.MessageID),
			zap.Error(err),
		)
	}

	s.logger.Info("Email sent",
		zap.String("order_id", order.ID.String()),
		zap.String("email_type", entry.EmailType),
		zap.String("message_id", result.MessageID),
	)
	recordCount(s.metrics, aws_pkg.MetricEmailsSent, map[string]string{"EmailType": entry.EmailType})
	return nil
}

func (s *notificationServiceImpl) recordFailure(ctx context.Context, entry *models.EmailOutbox, sendErr error) {
	attempts := entry.Attempts + 1
	status := models.OutboxStatusPending
	next := s.now().Add(RetryDelay(attempts))
	if attempts >= MaxEmailAttempts {
		status = models.OutboxStatusFailed
	}

	msg := truncateUTF8(sendErr.Error(), maxErrorLength)

	s.logger.Warn("Email send failed",
		zap.String("outbox_id", entry.ID.String()),
		zap.String("order_id", entry.OrderID.String()),
		zap.Int("attempt", attempts),
		zap.String("status", status),
		zap.Error(sendErr),
	)
	recordCount(s.metrics, aws_pkg.MetricEmailsFailed, map[string]string{"EmailType": entry.EmailType})

	if err := s.outbox.RecordFailure(ctx, entry.ID, attempts, status, next, msg); err != nil {
		s.logger.Error("Failed to record email failure", zap.String("outbox_id", entry.ID.String()), zap.Error(err))
	}
}

// Resend re-queues the purchase confirmation of an approved order.
func (s *notificationServiceImpl) Resend(ctx context.Context, orderID uuid.UUID) *ServiceError {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("order not found")
		}
		s.logger.Error("Failed to load order", zap.String("order_id", orderID.String()), zap.Error(err))
		return internal("failed to load order")
	}
	if order.Status != models.OrderStatusApproved {
		return conflict("only approved orders have a confirmation email")
	}

	if err := s.outbox.Rearm(ctx, order.ID, models.EmailTypePurchaseConfirmation, s.now()); err != nil {
		s.logger.Error("Failed to re-arm confirmation email", zap.String("order_id", orderID.String()), zap.Error(err))
		return internal("failed to queue email")
	}

	s.logger.Info("Confirmation email re-armed", zap.String("order_id", orderID.String()))
	return nil
}

// RetryDelay is the backoff applied after the given number of failed
// attempts.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	if attempts > len(RetrySchedule) {
		return RetrySchedule[len(RetrySchedule)-1]
	}
	return RetrySchedule[attempts-1]
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
