package services

import (
	"context"
	"fmt"
	"time"

	"payment-api/internal/models"
	"payment-api/pkg/logging"

	brevo "github.com/getbrevo/brevo-go/lib"
)

// BrevoReceiptMailer e-mails a payment receipt through Brevo
type BrevoReceiptMailer struct {
	client    *brevo.APIClient
	fromEmail string
	fromName  string
}

// NewBrevoReceiptMailer creates a mailer; basePath overrides the API host when non-empty.
func NewBrevoReceiptMailer(apiKey, fromEmail, fromName, basePath string) *BrevoReceiptMailer {
	cfg := brevo.NewConfiguration()
	cfg.AddDefaultHeader("api-key", apiKey)
	if basePath != "" {
		cfg.BasePath = basePath
	}
	return &BrevoReceiptMailer{
		client:    brevo.NewAPIClient(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

// OrderPaid sends the receipt when the order carries a contact address.
func (m *BrevoReceiptMailer) OrderPaid(ctx context.Context, order *models.Order, membership *models.Membership) {
	if order.ContactEmail == "" {
		return
	}
	if err := m.SendReceipt(ctx, order, membership); err != nil {
		logging.Errorf("Failed to send receipt - order: %s, error: %v", order.OutTradeNo, err)
		return
	}
	logging.Infof("Receipt sent - order: %s", order.OutTradeNo)
}

// SendReceipt sends a single receipt e-mail.
func (m *BrevoReceiptMailer) SendReceipt(ctx context.Context, order *models.Order, membership *models.Membership) error {
	subject, html, text := receiptContent(order, membership)

	_, _, err := m.client.TransactionalEmailsApi.SendTransacEmail(ctx, brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Name: m.fromName, Email: m.fromEmail},
		To:          []brevo.SendSmtpEmailTo{{Email: order.ContactEmail}},
		Subject:     subject,
		HtmlContent: html,
		TextContent: text,
	})
	if err != nil {
		return fmt.Errorf("brevo API error: %w", err)
	}
	return nil
}

func receiptContent(order *models.Order, membership *models.Membership) (subject, html, text string) {
	subject = fmt.Sprintf("Payment received - %s", order.Name)

	validity := ""
	switch {
	case membership == nil:
	case membership.IsLifetime:
		validity = "Your membership is now permanent."
	case membership.ExpiresAt != nil:
		validity = fmt.Sprintf("Your membership is valid until %s.", membership.ExpiresAt.Format("2006-01-02"))
	}

	paidAt := time.Now()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}

	html = fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<title>Payment received</title>
		</head>
		<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<div style="background-color: #f8f9fa; padding: 30px; border-radius: 10px;">
				<h1 style="color: #333; margin-bottom: 20px;">Thank you for your payment</h1>
				<p style="color: #666; font-size: 16px;">Order: %s</p>
				<p style="color: #666; font-size: 16px;">Item: %s</p>
				<p style="color: #666; font-size: 16px;">Amount: ¥%s</p>
				<p style="color: #666; font-size: 16px;">Paid at: %s</p>
				<p style="color: #333; font-size: 16px; margin-top: 20px;">%s</p>
			</div>
		</body>
		</html>
	`, order.OutTradeNo, order.Name, order.Amount.StringFixed(2), paidAt.Format("2006-01-02 15:04:05"), validity)

	text = fmt.Sprintf("Thank you for your payment\n\nOrder: %s\nItem: %s\nAmount: %s\nPaid at: %s\n%s\n",
		order.OutTradeNo, order.Name, order.Amount.StringFixed(2), paidAt.Format("2006-01-02 15:04:05"), validity)
	return subject, html, text
}
