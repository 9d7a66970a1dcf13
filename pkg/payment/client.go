// Package payment is the HTTP client for the payment gateway. It lists
// active billing plans, creates tokenized charges and verifies transactions
// reported by inbound webhooks.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BillingPlan is a chargeable plan as exposed by the gateway. Name matches
// the quota tier name.
type BillingPlan struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Interval string `json:"interval"`
	Active   bool   `json:"active"`
}

// ChargeRequest is a tokenized charge against a stored card.
type ChargeRequest struct {
	CardToken      string `json:"card_token"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Charge is the gateway's record of a completed charge attempt.
type Charge struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is the gateway-side view of a transaction looked up by ID.
type Transaction struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// StatusSuccessful is the gateway's terminal success status for charges
// and transactions.
const StatusSuccessful = "successful"

// Client talks to the payment gateway over HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a gateway client.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if token == "" {
		return nil, ErrMissingToken
	}

	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListPlans returns the gateway's active billing plans.
func (c *Client) ListPlans(ctx context.Context) ([]BillingPlan, error) {
	var out struct {
		Plans []BillingPlan `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/plans?active=true", nil, &out); err != nil {
		return nil, err
	}
	return out.Plans, nil
}

// CreateCharge issues a charge against a stored card token.
func (c *Client) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	var out Charge
	if err := c.do(ctx, http.MethodPost, "/v1/charges", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTransaction fetches a transaction by ID and confirms it succeeded.
// Webhook payloads are never trusted on their own; this lookup is the
// defense against spoofed "successful" events.
func (c *Client) VerifyTransaction(ctx context.Context, txID string) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/v1/transactions/"+txID, nil, &out); err != nil {
		var ge *GatewayError
		if errors.As(err, &ge) && ge.StatusCode == http.StatusNotFound {
			return nil, errors.Join(ErrTransactionNotFound, err)
		}
		return nil, err
	}

	if out.Status != StatusSuccessful {
		return nil, fmt.Errorf("%w: status %q", ErrTransactionNotVerified, out.Status)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network-level failures are transient by classification; the
		// caller decides whether to retry.
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newGatewayError(resp.StatusCode, raw)
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errors.Join(ErrDecodeResponse, err)
	}
	return nil
}
