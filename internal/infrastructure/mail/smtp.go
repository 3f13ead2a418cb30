// Package mail delivers notifications over SMTP.
package mail

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"

	"coopsync/internal/config"
	"coopsync/internal/domain/notify"
)

var _ notify.Sender = (*SMTPSender)(nil)

// SMTPSender implements notify.Sender.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSMTPSender returns nil when no SMTP host is configured.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	if cfg.Host == "" {
		return nil
	}

	var auth smtp.Auth
	if cfg.User != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}

	from := cfg.From
	if from == "" {
		from = cfg.User
	}

	return &SMTPSender{
		addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from: from,
		auth: auth,
		send: func(e *email.Email, addr string, auth smtp.Auth) error { return e.Send(addr, auth) },
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("mail: empty recipient")
	}

	if err := s.send(s.build(msg), s.addr, s.auth); err != nil {
		return fmt.Errorf("mail: send to %s: %w", msg.To, err)
	}
	return nil
}

func (s *SMTPSender) build(msg notify.Message) *email.Email {
	e := email.NewEmail()
	e.From = s.from
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)
	if msg.Ref != "" {
		e.Headers.Set("X-Coopsync-Ref", msg.Ref)
	}
	return e
}
