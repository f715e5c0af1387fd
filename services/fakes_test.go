package services_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/gateway"
	"github.com/JuanCarJ/studioz-academy-sub000/sender"

	"go.uber.org/zap"
)

// ---- mock gateway ----

type fakeGateway struct {
	mu    sync.Mutex
	txs   map[string]*gateway.Transaction
	errs  map[string]error
	calls int

	urlErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{txs: map[string]*gateway.Transaction{}, errs: map[string]error{}}
}

func (g *fakeGateway) CheckoutURL(reference string, amountInCents int64, currency, redirectURL string) (string, error) {
	if g.urlErr != nil {
		return "", g.urlErr
	}
	return fmt.Sprintf("https://checkout.test/p/?reference=%s&amount-in-cents=%d&currency=%s&redirect-url=%s",
		reference, amountInCents, currency, url.QueryEscape(redirectURL)), nil
}

func (g *fakeGateway) FindTransactionByReference(_ context.Context, reference string) (*gateway.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := g.errs[reference]; err != nil {
		return nil, err
	}
	return g.txs[reference], nil
}

func (g *fakeGateway) set(reference string, status gateway.TransactionStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.txs[reference] = &gateway.Transaction{
		ID:                "tx-" + reference,
		Reference:         reference,
		Status:            status,
		PaymentMethodType: "CARD",
	}
}

// ---- mock SNS publisher ----

type mockSNS struct {
	mu         sync.Mutex
	publishErr error
	messages   [][]byte
}

func (m *mockSNS) Publish(_ context.Context, _ string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	return m.publishErr
}

func (m *mockSNS) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// ---- mock email sender ----

type sentEmail struct {
	to, subject, body string
}

type mockSender struct {
	mu        sync.Mutex
	err       error
	messageID string
	sent      []sentEmail
}

func (m *mockSender) SendEmail(_ context.Context, to, subject, body string) (sender.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return sender.SendResult{}, m.err
	}
	m.sent = append(m.sent, sentEmail{to, subject, body})
	return sender.SendResult{MessageID: m.messageID, SentAt: time.Now()}, nil
}

// ---- mock throttle ----

type mockThrottle struct {
	allow bool
	err   error
	keys  []string
}

func (m *mockThrottle) Allow(_ context.Context, key string) (bool, error) {
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

// ---- helpers ----

const testTopic = "arn:aws:sns:us-east-1:000000000000:payments"

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
