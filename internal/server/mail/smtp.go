package mail

import (
	"context"
	"fmt"
	"time"

	gomail "github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	UseTLS   bool
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPSender delivers envelopes through an SMTP relay, dialing once per
// message.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

var dialAndSend = func(ctx context.Context, c *gomail.Client, msgs ...*gomail.Msg) error {
	return c.DialAndSendWithContext(ctx, msgs...)
}

func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{gomail.WithPort(cfg.Port)}

	if cfg.UseTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	if cfg.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(cfg.Timeout))
	}

	c, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &SMTPSender{client: c, from: cfg.From}, nil
}

func buildMsg(from string, env Envelope) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("from address: %w", err)
	}
	if err := m.To(env.To); err != nil {
		return nil, fmt.Errorf("to address: %w", err)
	}
	m.Subject(env.Subject)
	m.SetBodyString(gomail.TypeTextPlain, env.Text)
	if env.HTML != "" {
		m.AddAlternativeString(gomail.TypeTextHTML, env.HTML)
	}
	return m, nil
}

func (s *SMTPSender) Send(ctx context.Context, env Envelope) error {
	m, err := buildMsg(s.from, env)
	if err != nil {
		return err
	}
	if err := dialAndSend(ctx, s.client, m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
