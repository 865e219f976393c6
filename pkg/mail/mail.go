package mail

import (
	"context"
	"fmt"

	"github.com/Payphone-Digital/auth-service/config"
	"go.uber.org/zap"
)

type Driver string

const (
	SMTP = Driver("smtp")
	Log  = Driver("log")
)

type Mailer interface {
	Send(context.Context, *Message) error
}

type Address struct {
	Name    string
	Address string
}

type Message struct {
	From    Address
	To      []Address
	Subject string
	HTML    string
	Text    string
	Headers map[string]string
}

// NewMailer builds the transport selected by MAIL_DRIVER.
func NewMailer(cfg config.MailConfig, logger *zap.Logger) (Mailer, error) {
	switch Driver(cfg.Driver) {
	case SMTP:
		return NewSMTPMailer(cfg), nil
	case Log, "":
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
	}
}

// LogMailer writes messages to the logger instead of delivering them.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{logger: logger}
}

func (l *LogMailer) Send(ctx context.Context, m *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := make([]string, len(m.To))
	for i, a := range m.To {
		to[i] = a.Address
	}
	l.logger.Info("Mail (log driver)",
		zap.String("from", m.From.Address),
		zap.Strings("to", to),
		zap.String("subject", m.Subject),
		zap.Int("html_bytes", len(m.HTML)),
	)
	return nil
}
