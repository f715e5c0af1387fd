package gateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable wraps every outbound failure (network, timeout, non-2xx,
	// undecodable body). Callers treat it as "no information, try later".
	ErrUnavailable = errors.New("payment gateway unavailable")

	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrMissingTransaction = errors.New("webhook payload has no transaction")
)

// TransactionStatus is the gateway's own status vocabulary.
type TransactionStatus string

const (
	StatusPending  TransactionStatus = "PENDING"
	StatusApproved TransactionStatus = "APPROVED"
	StatusDeclined TransactionStatus = "DECLINED"
	StatusVoided   TransactionStatus = "VOIDED"
	StatusError    TransactionStatus = "ERROR"
)

// Transaction is the subset of a gateway transaction this service acts on.
type Transaction struct {
	ID                string            `json:"id" validate:"required"`
	Reference         string            `json:"reference" validate:"required"`
	Status            TransactionStatus `json:"status" validate:"required"`
	PaymentMethodType string            `json:"payment_method_type"`
	AmountInCents     int64             `json:"amount_in_cents"`
	Currency          string            `json:"currency"`
}

// Gateway is the outbound surface of the payment provider.
type Gateway interface {
	// CheckoutURL builds the hosted checkout redirect for an order.
	CheckoutURL(reference string, amountInCents int64, currency, redirectURL string) (string, error)

	// FindTransactionByReference returns the transaction recorded for a
	// merchant reference, or nil when the customer has not paid yet.
	FindTransactionByReference(ctx context.Context, reference string) (*Transaction, error)
}
