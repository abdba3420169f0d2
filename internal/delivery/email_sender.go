package delivery

import (
	"fmt"

	"github.com/marketloop/marketloop/internal/config"
	"gopkg.in/gomail.v2"
)

type EmailSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewEmailSender(cfg *config.SMTPConfig) *EmailSender {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailSender{
		dialer:   dialer,
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (s *EmailSender) Send(identity, code string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.fromName)
	m.SetHeader("To", identity)
	m.SetHeader("Subject", "Password Reset Code")

	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
			<h1 style="color: #333; text-align: center;">Password Reset Request</h1>
			<p style="color: #666; font-size: 16px;">Your reset code is:</p>
			<div style="background: #f4f4f4; padding: 20px; text-align: center; margin: 20px 0; border-radius: 8px;">
				<h2 style="color: #333; letter-spacing: 5px; margin: 0;">%s</h2>
			</div>
			<p style="color: #666; font-size: 14px;">This code will expire in 10 minutes.</p>
		</div>
	`, code)

	m.SetBody("text/html", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}

	return nil
}
