package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/ecofood/foodshare/internal/delivery"
	"github.com/ecofood/foodshare/internal/model"
)

var _ delivery.Sender = (*EmailService)(nil)

// EmailService delivers listing alerts by email through Resend. In
// development it only logs what it would have sent.
type EmailService struct {
	client    *resend.Client
	fromEmail string
	isDev     bool
	appURL    string
	appName   string
}

func NewEmailService(apiKey, fromEmail, appURL, appName string, isDev bool) *EmailService {
	var client *resend.Client
	if apiKey != "" && !isDev {
		client = resend.NewClient(apiKey)
	}

	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		isDev:     isDev,
		appURL:    appURL,
		appName:   appName,
	}
}

func (s *EmailService) SendPostedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	subject, body := postedAlertTemplate(to.Name, donor.Name, listing, s.listingURL(listing), s.appName)
	return s.send(ctx, "posted_alert", to.Email, subject, body)
}

func (s *EmailService) SendClaimedAlert(ctx context.Context, to *model.Account, listing *model.Listing, organization *model.Account) error {
	subject, body := claimedAlertTemplate(to.Name, organization.Name, listing, s.appName)
	return s.send(ctx, "claimed_alert", to.Email, subject, body)
}

func (s *EmailService) SendPickupCompletedAlert(ctx context.Context, to *model.Account, listing *model.Listing, donor *model.Account) error {
	subject, body := pickupCompletedTemplate(to.Name, donor.Name, listing, s.appName)
	return s.send(ctx, "pickup_completed_alert", to.Email, subject, body)
}

func (s *EmailService) send(ctx context.Context, kind, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("send %s: recipient has no email address", kind)
	}

	if s.isDev {
		slog.Info("email sent (dev mode)", "type", kind, "to", to, "subject", subject)
		return nil
	}

	if s.client == nil {
		return fmt.Errorf("email service not configured (missing RESEND_API_KEY)")
	}

	params := &resend.SendEmailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		Text:    body,
	}

	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send %s: %w", kind, err)
	}
	slog.Info("email sent", "type", kind, "to", to)
	return nil
}

func (s *EmailService) listingURL(listing *model.Listing) string {
	return fmt.Sprintf("%s/listings/%s", s.appURL, listing.ID)
}
