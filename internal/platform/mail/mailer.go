package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	gomail "github.com/wneessen/go-mail"

	"github.com/unimerch/api/internal/platform/config"
)

// Message is an outbound notification. HTML bodies are sanitised before
// sending because parts of them originate from user-supplied remarks.
type Message struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages to recipients.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NopSender drops every message. Used when email notifications are disabled.
type NopSender struct{}

// Send implements Sender.
func (NopSender) Send(context.Context, Message) error { return nil }

// SMTPSender delivers mail through an authenticated SMTP relay.
type SMTPSender struct {
	client *gomail.Client
	from   string
	policy *bluemonday.Policy
}

// NewSMTPSender builds a sender from the SMTP configuration.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, errors.New("mail: smtp host is required")
	}
	from := strings.TrimSpace(cfg.FromAddress)
	if from == "" {
		return nil, errors.New("mail: from address is required")
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("mail: initialise smtp client: %w", err)
	}

	return &SMTPSender{
		client: client,
		from:   from,
		policy: bluemonday.UGCPolicy(),
	}, nil
}

// Send delivers the message, sanitising any HTML body first.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.build(msg)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("mail: send to %s: %w", strings.Join(msg.To, ","), err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) (*gomail.Msg, error) {
	if len(msg.To) == 0 {
		return nil, errors.New("mail: at least one recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return nil, errors.New("mail: subject is required")
	}
	if msg.Text == "" && msg.HTML == "" {
		return nil, errors.New("mail: message body is required")
	}

	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, fmt.Errorf("mail: invalid from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("mail: invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)

	if msg.HTML != "" {
		m.SetBodyString(gomail.TypeTextHTML, s.policy.Sanitize(msg.HTML))
		if msg.Text != "" {
			m.AddAlternativeString(gomail.TypeTextPlain, msg.Text)
		}
		return m, nil
	}

	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	return m, nil
}
