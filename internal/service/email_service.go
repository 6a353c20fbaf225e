package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

// EmailService sends transactional emails.
type EmailService interface {
	SendVerificationEmail(ctx context.Context, toEmail, link, idempotencyKey string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, link, idempotencyKey string) error
	SendOTPCode(ctx context.Context, toEmail, code string) error
}

// NoopEmailService is used when outbound email is disabled.
type NoopEmailService struct{}

func (s *NoopEmailService) SendVerificationEmail(ctx context.Context, toEmail, link, idempotencyKey string) error {
	log.Printf("[EmailService] noop send verification link to=%s", toEmail)
	return nil
}

func (s *NoopEmailService) SendPasswordResetEmail(ctx context.Context, toEmail, link, idempotencyKey string) error {
	log.Printf("[EmailService] noop send password reset link to=%s", toEmail)
	return nil
}

func (s *NoopEmailService) SendOTPCode(ctx context.Context, toEmail, code string) error {
	log.Printf("[EmailService] noop send otp code to=%s", toEmail)
	return nil
}

// ResendEmailService sends emails via Resend REST API.
type ResendEmailService struct {
	from   string
	client *resend.Client
}

func NewResendEmailService(apiKey, from string) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailService{
		from:   from,
		client: resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendVerificationEmail(ctx context.Context, toEmail, link, idempotencyKey string) error {
	if toEmail == "" || link == "" {
		return fmt.Errorf("toEmail and link are required")
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Verify your email",
		Text:    fmt.Sprintf("Follow this link to verify your email: %s\nThe link expires in 24 hours.", link),
		Html:    fmt.Sprintf(`<p><a href="%s">Verify your email</a></p><p>The link expires in 24 hours.</p>`, link),
	}
	return s.send(ctx, params, idempotencyKey)
}

func (s *ResendEmailService) SendPasswordResetEmail(ctx context.Context, toEmail, link, idempotencyKey string) error {
	if toEmail == "" || link == "" {
		return fmt.Errorf("toEmail and link are required")
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Reset your password",
		Text:    fmt.Sprintf("Follow this link to reset your password: %s\nThe link expires in 10 minutes.", link),
		Html:    fmt.Sprintf(`<p><a href="%s">Reset your password</a></p><p>The link expires in 10 minutes.</p>`, link),
	}
	return s.send(ctx, params, idempotencyKey)
}

func (s *ResendEmailService) SendOTPCode(ctx context.Context, toEmail, code string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: "Your one-time code",
		Text:    fmt.Sprintf("Your one-time code is %s. It expires in 5 minutes.", code),
		Html:    fmt.Sprintf("<p>Your one-time code is <strong>%s</strong>.</p><p>It expires in 5 minutes.</p>", code),
	}
	return s.send(ctx, params, "")
}

func (s *ResendEmailService) send(ctx context.Context, params *resend.SendEmailRequest, idempotencyKey string) error {
	options := &resend.SendEmailOptions{}
	if strings.TrimSpace(idempotencyKey) != "" {
		options.IdempotencyKey = strings.TrimSpace(idempotencyKey)
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}
