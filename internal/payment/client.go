// AngelaMos | 2026
// client.go

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kyora-app/kyora-backend/internal/config"
	"github.com/kyora-app/kyora-backend/internal/onboarding"
)

// Client creates hosted checkout sessions with the payment provider. The
// session token rides along as the client reference so the provider's
// server-to-server confirmation can name the session it belongs to.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

var _ onboarding.PaymentInitiator = (*Client)(nil)

func NewClient(cfg config.PaymentConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

type checkoutPayload struct {
	ClientReferenceID string `json:"client_reference_id"`
	PlanID            string `json:"plan_id"`
	CustomerEmail     string `json:"customer_email"`
	SuccessURL        string `json:"success_url"`
	CancelURL         string `json:"cancel_url"`
}

type checkoutSession struct {
	URL string `json:"url"`
}

func (c *Client) StartCheckout(
	ctx context.Context,
	req onboarding.CheckoutRequest,
) (string, error) {
	payload, err := json.Marshal(checkoutPayload{
		ClientReferenceID: req.SessionToken,
		PlanID:            req.PlanID,
		CustomerEmail:     req.Email,
		SuccessURL:        req.SuccessURL,
		CancelURL:         req.CancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("encode checkout: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/checkout/sessions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("build checkout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf(
			"checkout provider returned %d: %s",
			resp.StatusCode,
			string(body),
		)
	}

	var session checkoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decode checkout session: %w", err)
	}
	if session.URL == "" {
		return "", fmt.Errorf("checkout provider returned no url")
	}

	return session.URL, nil
}
