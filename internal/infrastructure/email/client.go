// Package email provides the email client for sending operational alerts.
package email

import (
	"fmt"

	"github.com/attendly/attendly-go/internal/domain/entities/attendance"
	"github.com/attendly/attendly-go/internal/infrastructure/email/templates"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending alerts, allowing for mock implementations in tests.
type Service interface {
	SendDeadLetterAlert(toEmail string, entry *attendance.QueueEntry, deadTotal int) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client, returning the Service interface.
func NewService(apiKey, fromEmail string) (Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if fromEmail == "" {
		fromEmail = "alerts@attendly.app"
	}

	return &ResendClient{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  "Attendly",
	}, nil
}

// SendDeadLetterAlert composes and sends the dead-letter notification.
func (c *ResendClient) SendDeadLetterAlert(toEmail string, entry *attendance.QueueEntry, deadTotal int) error {
	subject := fmt.Sprintf("Attendly: record %s moved to dead-letter set", entry.Record.RecordID)

	props := templates.DeadLetterEmailProps{
		RecordID:  entry.Record.RecordID,
		UserID:    entry.Record.UserID,
		ZoneID:    entry.Record.ZoneID,
		Attempts:  entry.Attempts,
		DeadTotal: deadTotal,
	}
	if entry.LastError != nil {
		props.LastError = *entry.LastError
	}
	if entry.DeadAt != nil {
		props.DeadAt = *entry.DeadAt
	}

	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Content: templates.GetDeadLetterEmailContent(props),
	})

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send dead-letter alert via Resend: %w", err)
	}

	return nil
}
