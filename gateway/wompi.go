package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultCheckoutBaseURL = "https://checkout.wompi.co/p/"
	DefaultAPIBaseURL      = "https://production.wompi.co/v1"
	DefaultTimeout         = 10 * time.Second
)

// WompiConfig holds the merchant credentials for the Wompi gateway.
type WompiConfig struct {
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	CheckoutBaseURL string
	APIBaseURL      string
	Timeout         time.Duration
}

// WompiClient implements Gateway against the Wompi REST API.
type WompiClient struct {
	cfg        WompiConfig
	httpClient *http.Client
}

// NewWompiClient creates a new WompiClient. Empty base URLs and timeout fall
// back to the production defaults.
func NewWompiClient(cfg WompiConfig) *WompiClient {
	if cfg.CheckoutBaseURL == "" {
		cfg.CheckoutBaseURL = DefaultCheckoutBaseURL
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &WompiClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IntegritySignature is the hex SHA-256 of reference, amount, currency and
// the integrity secret concatenated in that order.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(amountInCents, 10) + currency + secret))
	return hex.EncodeToString(sum[:])
}

func (w *WompiClient) CheckoutURL(reference string, amountInCents int64, currency, redirectURL string) (string, error) {
	if reference == "" {
		return "", fmt.Errorf("checkout url: empty reference")
	}
	if amountInCents <= 0 {
		return "", fmt.Errorf("checkout url: amount must be positive, got %d", amountInCents)
	}

	base, err := url.Parse(w.cfg.CheckoutBaseURL)
	if err != nil {
		return "", fmt.Errorf("checkout url: parse base: %w", err)
	}

	q := url.Values{}
	q.Set("public-key", w.cfg.PublicKey)
	q.Set("currency", currency)
	q.Set("amount-in-cents", strconv.FormatInt(amountInCents, 10))
	q.Set("reference", reference)
	q.Set("signature:integrity", IntegritySignature(reference, amountInCents, currency, w.cfg.IntegritySecret))
	if redirectURL != "" {
		q.Set("redirect-url", redirectURL)
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

type transactionListResponse struct {
	Data []Transaction `json:"data"`
}

func (w *WompiClient) FindTransactionByReference(ctx context.Context, reference string) (*Transaction, error) {
	var out transactionListResponse
	path := "/transactions?reference=" + url.QueryEscape(reference)
	if err := w.doRequest(ctx, http.MethodGet, path, &out); err != nil {
		return nil, err
	}
	return pickTransaction(out.Data), nil
}

// pickTransaction chooses which of several attempts under one reference
// represents the order. An approved attempt always wins; otherwise the most
// recent (first listed) one is used.
func pickTransaction(txs []Transaction) *Transaction {
	if len(txs) == 0 {
		return nil
	}
	for i := range txs {
		if txs[i].Status == StatusApproved {
			return &txs[i]
		}
	}
	return &txs[0]
}

func (w *WompiClient) doRequest(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, w.cfg.APIBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.PrivateKey)
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: wompi API error (status %d): %s", ErrUnavailable, resp.StatusCode, string(respBytes))
	}

	if out != nil {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}
	return nil
}
