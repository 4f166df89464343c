package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wneessen/go-mail"

	"github.com/eringen/folio/internal/logging"
)

// Transport delivers one templated message to one recipient.
type Transport interface {
	Send(ctx context.Context, to string, id TemplateID, vars map[string]string) error
}

// SMTPConfig holds outgoing mail server settings.
type SMTPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	Encryption string `yaml:"encryption"` // none, starttls or ssl_tls
}

// Enabled reports whether enough is set to send mail.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// SMTPTransport sends rendered templates through an SMTP server.
type SMTPTransport struct {
	config    SMTPConfig
	templates *Templates
}

// NewSMTPTransport returns a transport for config.
func NewSMTPTransport(config SMTPConfig, templates *Templates) *SMTPTransport {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPTransport{config: config, templates: templates}
}

// Send renders id and delivers it to to.
func (t *SMTPTransport) Send(ctx context.Context, to string, id TemplateID, vars map[string]string) error {
	msg, err := t.templates.Render(id, vars)
	if err != nil {
		return err
	}

	m := mail.NewMsg()
	if err := m.From(t.config.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(to); err != nil {
		return &TransportError{Recipient: to, Err: fmt.Errorf("invalid recipient: %w", err)}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)

	opts := []mail.Option{
		mail.WithPort(t.config.Port),
		mail.WithTLSPolicy(tlsPolicy(t.config.Encryption)),
	}
	if t.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.config.Username),
			mail.WithPassword(t.config.Password),
		)
	}
	c, err := mail.NewClient(t.config.Host, opts...)
	if err != nil {
		return &TransportError{Recipient: to, Err: fmt.Errorf("creating mail client: %w", err)}
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return &TransportError{Recipient: to, Err: err}
	}
	return nil
}

func tlsPolicy(enc string) mail.TLSPolicy {
	switch enc {
	case "ssl_tls":
		return mail.TLSMandatory
	case "starttls":
		return mail.TLSOpportunistic
	default:
		return mail.NoTLS
	}
}

// LogTransport renders messages and writes them to the log instead of
// sending them. It is used when no SMTP server is configured.
type LogTransport struct {
	templates *Templates
	log       *slog.Logger
}

// NewLogTransport returns a transport that logs at info level.
func NewLogTransport(templates *Templates, logger *slog.Logger) *LogTransport {
	return &LogTransport{templates: templates, log: logging.OrDiscard(logger)}
}

// Send renders id and logs the result.
func (t *LogTransport) Send(ctx context.Context, to string, id TemplateID, vars map[string]string) error {
	if err := ctx.Err(); err != nil {
		return &TransportError{Recipient: to, Err: err}
	}
	msg, err := t.templates.Render(id, vars)
	if err != nil {
		return err
	}
	t.log.Info("email (not sent, smtp disabled)",
		"to", to, "template", string(id), "subject", msg.Subject, "body", msg.Text)
	return nil
}

// IsTemplateError reports whether err is a TemplateError.
func IsTemplateError(err error) bool {
	var te *TemplateError
	return errors.As(err, &te)
}
