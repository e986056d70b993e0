package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/BradenHooton/cyberarcade/internal/models"
	pkglogger "github.com/BradenHooton/cyberarcade/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of the SES client used for delivery
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier delivers notifications as email through AWS SES
type SESNotifier struct {
	client       SESAPI
	fromAddress  string
	resetURLBase string
	logger       *slog.Logger
}

// NewSESNotifier loads the default AWS configuration for region and creates an SES notifier
func NewSESNotifier(ctx context.Context, region, fromAddress, resetURLBase string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, resetURLBase, logger), nil
}

// NewSESNotifierWithClient creates an SES notifier over an existing client
func NewSESNotifierWithClient(client SESAPI, fromAddress, resetURLBase string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{
		client:       client,
		fromAddress:  fromAddress,
		resetURLBase: resetURLBase,
		logger:       logger,
	}
}

type emailMessage struct {
	subject string
	text    string
	html    string
}

// Notify renders n and sends it to recipient
func (s *SESNotifier) Notify(ctx context.Context, recipient string, n models.Notification) error {
	msg, err := s.render(n)
	if err != nil {
		return err
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(msg.subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(msg.html),
				},
				Text: &types.Content{
					Data: aws.String(msg.text),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	messageID := ""
	if result != nil && result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.logger.Info("notification email sent",
		slog.String("kind", string(n.Kind())),
		slog.String("email", pkglogger.SanitizedEmail(recipient)),
		slog.String("message_id", messageID))

	return nil
}

func (s *SESNotifier) render(n models.Notification) (emailMessage, error) {
	switch v := n.(type) {
	case models.LockoutEngaged:
		return renderLockoutEngaged(v), nil
	case models.AccountUnlocked:
		return renderAccountUnlocked(v), nil
	case models.PasswordResetIssued:
		return s.renderPasswordReset(v), nil
	default:
		return emailMessage{}, fmt.Errorf("%w: unsupported kind %T", models.ErrInvalidNotification, n)
	}
}

func renderLockoutEngaged(n models.LockoutEngaged) emailMessage {
	var detail string
	switch {
	case n.Permanent:
		detail = "Your account has been locked after repeated failed sign-in attempts. Contact an administrator to restore access."
	case n.ExpiresAt == nil:
		detail = "Your account has been temporarily locked after repeated failed sign-in attempts."
	default:
		detail = fmt.Sprintf("Your account has been locked after repeated failed sign-in attempts. You can try again after %s.",
			n.ExpiresAt.UTC().Format(time.RFC1123))
	}

	text := fmt.Sprintf(`Account locked

%s

If these attempts were not made by you, contact support after regaining access and change your password.

This is an automated message. Please do not reply to this email.
`, detail)

	return emailMessage{
		subject: "Your cyberarcade account has been locked",
		text:    text,
		html:    wrapHTML("Account Locked", fmt.Sprintf("<p>%s</p>", detail)),
	}
}

func renderAccountUnlocked(n models.AccountUnlocked) emailMessage {
	detail := fmt.Sprintf("An administrator unlocked your account at %s. You can sign in again.",
		n.At.UTC().Format(time.RFC1123))

	text := fmt.Sprintf(`Account unlocked

%s

This is an automated message. Please do not reply to this email.
`, detail)

	return emailMessage{
		subject: "Your cyberarcade account has been unlocked",
		text:    text,
		html:    wrapHTML("Account Unlocked", fmt.Sprintf("<p>%s</p>", detail)),
	}
}

func (s *SESNotifier) renderPasswordReset(n models.PasswordResetIssued) emailMessage {
	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.resetURLBase, url.QueryEscape(n.Token))
	expires := n.ExpiresAt.UTC().Format(time.RFC1123)

	text := fmt.Sprintf(`Password reset required

An administrator has required a password reset for your account. Choose a new password using the link below:

%s

This link expires at %s and can only be used once.

This is an automated message. Please do not reply to this email.
`, resetLink, expires)

	body := fmt.Sprintf(`<p>An administrator has required a password reset for your account.</p>
            <p><a href="%s" class="button">Reset Password</a></p>
            <p>Or copy and paste this link in your browser:<br>
            <code>%s</code></p>
            <div class="warning">This link expires at %s and can only be used once.</div>`,
		resetLink, resetLink, expires)

	return emailMessage{
		subject: "Reset your cyberarcade password",
		text:    text,
		html:    wrapHTML("Password Reset Required", body),
	}
}

func wrapHTML(title, body string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>%s</h1>
        </div>
        <div class="content">
            %s
        </div>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, title, body)
}
