package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

// AWSSESCodeSender delivers one-time passcodes by email using AWS SES. It
// implements otp.Sender. The plaintext code exists only inside the outbound
// message body; it is never logged.
type AWSSESCodeSender struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESCodeSender creates a new AWS SES code sender
func NewAWSSESCodeSender(region, fromAddress string, logger *slog.Logger) (*AWSSESCodeSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESCodeSender{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendCode sends the one-time passcode to the target email address
func (s *AWSSESCodeSender) SendCode(ctx context.Context, target, code string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .code { font-size: 32px; letter-spacing: 8px; font-weight: bold; text-align: center; padding: 20px; background-color: #f1f8f4; border-radius: 4px; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Your Sprout Market sign-in code</h1>
        </div>
        <p>Enter this code to continue. It expires in a few minutes.</p>
        <div class="code">%s</div>
        <p><strong>Didn't request this code?</strong><br>
        Someone may have typed your email address by mistake. You can safely ignore this message; nobody can sign in without the code.</p>
        <div class="footer">
            <p>This is an automated message. Please do not reply to this email.</p>
        </div>
    </div>
</body>
</html>
`, code)

	textBody := fmt.Sprintf(`Your Sprout Market sign-in code

Enter this code to continue. It expires in a few minutes.

    %s

Didn't request this code? Someone may have typed your email address by
mistake. You can safely ignore this message; nobody can sign in without
the code.

This is an automated message. Please do not reply to this email.
`, code)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{target},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Your Sprout Market sign-in code"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send code email via SES",
			slog.String("target", pkglogger.SanitizedTarget(target)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("code email sent",
		slog.String("target", pkglogger.SanitizedTarget(target)),
		slog.String("message_id", *result.MessageId))

	return nil
}
