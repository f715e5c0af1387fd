package controllers_test

import (
	"context"

	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ---- concrete mocks implementing the service interfaces ----

type mockWebhookSvc struct {
	res     *services.WebhookResult
	err     *services.ServiceError
	gotBody []byte
}

func (m *mockWebhookSvc) HandleEvent(_ context.Context, body []byte, _ string) (*services.WebhookResult, *services.ServiceError) {
	m.gotBody = body
	return m.res, m.err
}

type mockCheckoutSvc struct {
	res *services.CheckoutResult
	err *services.ServiceError
}

func (m *mockCheckoutSvc) Checkout(context.Context, uuid.UUID) (*services.CheckoutResult, *services.ServiceError) {
	return m.res, m.err
}

type mockOrderSvc struct {
	view     *services.PaymentStatusView
	viewErr  *services.ServiceError
	audit    *services.OrderEvents
	auditErr *services.ServiceError
	gotUser  uuid.UUID
}

func (m *mockOrderSvc) GetPaymentStatus(_ context.Context, userID uuid.UUID, _ string) (*services.PaymentStatusView, *services.ServiceError) {
	m.gotUser = userID
	return m.view, m.viewErr
}

func (m *mockOrderSvc) ListPaymentEvents(context.Context, uuid.UUID) (*services.OrderEvents, *services.ServiceError) {
	return m.audit, m.auditErr
}

type mockPoller struct {
	sweep      *services.SweepResult
	sweepErr   *services.ServiceError
	recheck    *services.RecheckResult
	recheckErr *services.ServiceError
}

func (m *mockPoller) SweepPending(context.Context) (*services.SweepResult, *services.ServiceError) {
	return m.sweep, m.sweepErr
}

func (m *mockPoller) Recheck(context.Context, uuid.UUID, string) (*services.RecheckResult, *services.ServiceError) {
	return m.recheck, m.recheckErr
}

type mockNotificationSvc struct {
	send      *services.OutboxSendResult
	sendErr   *services.ServiceError
	resendErr *services.ServiceError
	resent    []uuid.UUID
}

func (m *mockNotificationSvc) SendDue(context.Context) (*services.OutboxSendResult, *services.ServiceError) {
	return m.send, m.sendErr
}

func (m *mockNotificationSvc) Resend(_ context.Context, orderID uuid.UUID) *services.ServiceError {
	m.resent = append(m.resent, orderID)
	return m.resendErr
}

// ---- helpers ----

func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for RequireUser.
func asUser(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Next()
	}
}
