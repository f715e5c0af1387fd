package sender

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	// From defaults to Username.
	From string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP_HOST not set")
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("SMTP_PORT not set")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("SMTP_USER not set")
	}
	if cfg.Password == "" {
		return nil, fmt.Errorf("SMTP_PASS not set")
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPSender{cfg: cfg, sendMail: smtp.SendMail}, nil
}

func (s *SMTPSender) SendEmail(ctx context.Context, to, subject, body string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return SendResult{}, fmt.Errorf("invalid recipient %q", to)
	}

	addr := s.cfg.Host + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.cfg.Host)

	msg := []byte(
		"From: " + s.cfg.From + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + strings.ReplaceAll(subject, "\r\n", " ") + "\r\n" +
			"Message-ID: " + messageID + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n" +
			"\r\n" +
			body,
	)

	if err := s.sendMail(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}

	return SendResult{MessageID: messageID, SentAt: time.Now()}, nil
}
