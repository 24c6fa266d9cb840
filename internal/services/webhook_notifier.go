package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"payment-api/internal/models"
	"payment-api/pkg/logging"

	"github.com/go-resty/resty/v2"
)

// PaymentHook runs after an order has been committed as paid. membership is
// nil for one-time orders. Hooks are best effort and never affect the
// acknowledgement sent to the gateway.
type PaymentHook interface {
	OrderPaid(ctx context.Context, order *models.Order, membership *models.Membership)
}

// WebhookNotifier pushes membership changes to a downstream backend
type WebhookNotifier struct {
	client      *resty.Client
	url         string
	secret      string
	retryDelays []time.Duration
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	client := resty.New()
	client.SetTimeout(10 * time.Second)

	return &WebhookNotifier{
		client:      client,
		url:         url,
		secret:      secret,
		retryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// WebhookPayload represents the payload sent downstream
type WebhookPayload struct {
	Event          string `json:"event"`           // membership.updated
	UserID         string `json:"user_id"`         // owner of the membership
	MembershipType string `json:"membership_type"` // tier or lifetime
	IsLifetime     bool   `json:"is_lifetime"`     // true when expires_at is empty
	ExpiresAt      string `json:"expires_at"`      // ISO 8601, empty for lifetime
	OrderID        string `json:"order_id"`        // out_trade_no that produced this state
	Timestamp      string `json:"timestamp"`       // ISO 8601
}

// OrderPaid sends the membership change; one-time orders are ignored.
func (wn *WebhookNotifier) OrderPaid(ctx context.Context, order *models.Order, membership *models.Membership) {
	if wn.url == "" || membership == nil {
		return
	}

	payload := WebhookPayload{
		Event:          "membership.updated",
		UserID:         membership.UserID,
		MembershipType: membership.MembershipType,
		IsLifetime:     membership.IsLifetime,
		OrderID:        order.OutTradeNo,
		Timestamp:      time.Now().Format(time.RFC3339),
	}
	if membership.ExpiresAt != nil {
		payload.ExpiresAt = membership.ExpiresAt.Format(time.RFC3339)
	}

	wn.sendWithRetry(ctx, payload)
}

// sendWithRetry sends webhook with retry mechanism
// Retry schedule: 1s, 5s, 30s (3 attempts total)
func (wn *WebhookNotifier) sendWithRetry(ctx context.Context, payload WebhookPayload) {
	maxRetries := len(wn.retryDelays)

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := wn.sendWebhook(ctx, payload)
		if err == nil {
			logging.Infof("Webhook notification sent successfully - url: %s, order: %s, attempt: %d",
				wn.url, payload.OrderID, attempt+1)
			return
		}

		logging.Errorf("Webhook notification failed - url: %s, order: %s, attempt: %d, error: %v",
			wn.url, payload.OrderID, attempt+1, err)

		if attempt < maxRetries-1 {
			select {
			case <-time.After(wn.retryDelays[attempt]):
			case <-ctx.Done():
				return
			}
		}
	}

	logging.Errorf("Webhook notification failed after %d attempts - url: %s, order: %s",
		maxRetries, wn.url, payload.OrderID)
}

// sendWebhook sends a single webhook request
func (wn *WebhookNotifier) sendWebhook(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req := wn.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(jsonData)
	if wn.secret != "" {
		req.SetHeader("X-Payment-Signature", generateSignature(jsonData, wn.secret))
	}

	resp, err := req.Post(wn.url)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}
	return nil
}

// generateSignature generates HMAC-SHA256 signature for webhook payload
func generateSignature(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
