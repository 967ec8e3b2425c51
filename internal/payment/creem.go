// Package payment is the boundary to the Creem payment gateway, used to pay
// upstream compute vendors for premium models.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Ref identifies a vendor payment at the gateway.
type Ref string

// Metadata correlates a vendor payment with the reservation that caused it,
// so an asynchronous payment.failed webhook can find its way back to a
// refund.
type Metadata struct {
	ReservationID string `json:"reservation_id"`
	UserAddress   string `json:"user_address"`
	ModelID       string `json:"model_id"`
}

// Gateway is the payment boundary.
type Gateway interface {
	PayVendor(ctx context.Context, amountCents int64, meta Metadata) (Ref, error)
}

// CreemClient is the authenticated Creem REST client.
type CreemClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewCreemClient(baseURL, apiKey string) *CreemClient {
	return &CreemClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *CreemClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// PayVendor moves amountCents to the compute vendor, tagged with the
// reservation metadata. A nil error means the synchronous leg succeeded; the
// gateway may still emit payment.failed later, which the webhook path turns
// into a refund.
func (c *CreemClient) PayVendor(ctx context.Context, amountCents int64, meta Metadata) (Ref, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/payments", map[string]any{
		"amount":   amountCents,
		"currency": "usd",
		"metadata": meta,
	})
	if err != nil {
		return "", fmt.Errorf("creem pay vendor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("creem pay vendor: status %d", resp.StatusCode)
	}

	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("creem pay vendor: decode: %w", err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("creem pay vendor: empty payment id")
	}
	return Ref(body.ID), nil
}
