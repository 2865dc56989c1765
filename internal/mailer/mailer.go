// Package mailer sends account notification emails over SMTP.
package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/parlorchat/parlor/internal/config"
)

// SMTPMailer delivers notifications through the configured SMTP account.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *slog.Logger
}

func New(log *slog.Logger, cfg config.SMTPConfig) *SMTPMailer {
	if log == nil {
		log = slog.Default()
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: log.With(slog.String("service", "mailer")),
	}
}

// Enabled reports whether an SMTP host is configured.
func (m *SMTPMailer) Enabled() bool {
	return m.cfg.Host != ""
}

// SendEmailChanged notifies the previous address that the account email moved.
func (m *SMTPMailer) SendEmailChanged(ctx context.Context, to, username, newEmail string) error {
	subject := "Your email address was changed"
	body := fmt.Sprintf(
		"Hi %s,\n\nthe email address of your account was changed to %s.\nIf you did not request this change, contact your workspace administrator.\n",
		username, newEmail)
	return m.send(ctx, to, subject, body)
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	if !m.Enabled() {
		m.logger.Debug("smtp not configured, skipping notification",
			slog.String("subject", subject))
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{mail.WithPort(m.cfg.Port)}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}
	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Info("notification sent", slog.String("subject", subject))
	return nil
}
