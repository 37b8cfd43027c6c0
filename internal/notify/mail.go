package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
)

// MailConfig holds the SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Sender delivers built messages; *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mail sends run events by SMTP.
type Mail struct {
	sender Sender
	from   string
	to     []string
}

// NewMail creates an SMTP client for cfg. Authentication is used when a
// username is set; TLS is used when the server offers it.
func NewMail(cfg MailConfig) (*Mail, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating smtp client: %w", err)
	}
	return NewMailSender(client, cfg.From, cfg.To), nil
}

// NewMailSender wraps an existing sender.
func NewMailSender(sender Sender, from string, to []string) *Mail {
	return &Mail{sender: sender, from: from, to: to}
}

// Message builds the mail of e.
func (m *Mail) Message(e Event) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", m.from, err)
	}
	if err := msg.To(m.to...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(e.Subject())
	msg.SetBodyString(mail.TypeTextPlain, e.Body())
	return msg, nil
}

func (m *Mail) Notify(ctx context.Context, e Event) error {
	msg, err := m.Message(e)
	if err != nil {
		return fmt.Errorf("mail: %w", err)
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("mail: send: %w", err)
	}
	return nil
}
