package mailer

import (
	"context"

	"github.com/codesprint/codesprint/internal/logger"
)

// Mailer delivers credential mails. Delivery transport lives outside
// this service; the auth layer only hands over ready-made links
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email string, username string, link string) error
	SendPasswordResetEmail(ctx context.Context, email string, username string, link string) error
}

// LogMailer writes mails to the log instead of sending them.
// Default in development and in tests
type LogMailer struct {
	Logger logger.Logger
}

func (m *LogMailer) SendVerificationEmail(_ context.Context, email string, username string, link string) error {
	m.Logger.Info("verification email",
		"email", email,
		"username", username,
		"link", link,
	)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(_ context.Context, email string, username string, link string) error {
	m.Logger.Info("password reset email",
		"email", email,
		"username", username,
		"link", link,
	)
	return nil
}
