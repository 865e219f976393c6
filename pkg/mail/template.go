package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/Payphone-Digital/auth-service/pkg/circuit"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names shipped with the service.
const (
	TemplateOTP           = "otp"
	TemplateWelcome       = "welcome"
	TemplateLoginAlert    = "login_alert"
	TemplatePasswordReset = "password_reset"
)

// TemplateData is the union of fields the shipped templates read.
type TemplateData struct {
	AppName          string
	Name             string
	Code             string
	ExpiresInMinutes int
	Provider         string
	Time             time.Time
	IP               string
	UserAgent        string
}

// TemplateMailer renders embedded HTML templates and hands the result to
// the underlying transport behind a circuit breaker.
type TemplateMailer struct {
	mailer    Mailer
	from      Address
	templates *template.Template
	breaker   *circuit.Breaker
}

func NewTemplateMailer(mailer Mailer, from Address, breaker *circuit.Breaker) (*TemplateMailer, error) {
	tmpl, err := template.New("mail").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	return &TemplateMailer{
		mailer:    mailer,
		from:      from,
		templates: tmpl,
		breaker:   breaker,
	}, nil
}

// Render executes the named template with data.
func (t *TemplateMailer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (t *TemplateMailer) SendTemplate(ctx context.Context, to Address, subject, name string, data any) error {
	html, err := t.Render(name, data)
	if err != nil {
		return err
	}

	msg := &Message{
		From:    t.from,
		To:      []Address{to},
		Subject: subject,
		HTML:    html,
	}

	if t.breaker == nil {
		return t.mailer.Send(ctx, msg)
	}
	return t.breaker.Execute(ctx, func(ctx context.Context) error {
		return t.mailer.Send(ctx, msg)
	})
}
