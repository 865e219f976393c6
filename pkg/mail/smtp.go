package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"github.com/Payphone-Digital/auth-service/config"
	"github.com/google/uuid"
)

type SMTPMailer struct {
	Host          string
	Port          int
	Username      string
	Password      string
	SkipTLSVerify bool
}

func NewSMTPMailer(cfg config.MailConfig) *SMTPMailer {
	return &SMTPMailer{
		Host:          cfg.Host,
		Port:          cfg.Port,
		Username:      cfg.User,
		Password:      cfg.Password,
		SkipTLSVerify: cfg.SkipTLSVerify,
	}
}

// build renders m as a multipart/alternative MIME message.
func (s *SMTPMailer) build(m *Message) []byte {
	boundary := uuid.NewString()
	domain := s.Host
	if _, d, ok := strings.Cut(m.From.Address, "@"); ok {
		domain = d
	}

	var sb strings.Builder
	sb.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&sb, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(&sb, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domain)
	fmt.Fprintf(&sb, "Subject: %s\r\n", mimeHeader(m.Subject))
	fmt.Fprintf(&sb, "From: %s\r\n", (&mail.Address{Name: m.From.Name, Address: m.From.Address}).String())

	to := make([]string, len(m.To))
	for i, a := range m.To {
		to[i] = (&mail.Address{Name: a.Name, Address: a.Address}).String()
	}
	fmt.Fprintf(&sb, "To: %s\r\n", strings.Join(to, ", "))

	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %s\r\n", k, m.Headers[k])
	}

	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	writePart := func(contentType, body string) {
		fmt.Fprintf(&sb, "--%s\r\n", boundary)
		fmt.Fprintf(&sb, "Content-Type: %s; charset=\"UTF-8\"\r\n", contentType)
		sb.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		sb.WriteString(body + "\r\n\r\n")
	}
	if m.Text != "" {
		writePart("text/plain", m.Text)
	}
	if m.HTML != "" {
		writePart("text/html", m.HTML)
	}
	fmt.Fprintf(&sb, "--%s--\r\n", boundary)

	return []byte(sb.String())
}

func mimeHeader(v string) string {
	return mime.QEncoding.Encode("utf-8", v)
}

// Send delivers m, using implicit TLS on port 465 and STARTTLS elsewhere
// when offered. The SMTP exchange runs in its own goroutine so ctx can
// abandon it.
func (s *SMTPMailer) Send(ctx context.Context, m *Message) error {
	if len(m.To) == 0 {
		return fmt.Errorf("mail: no recipients")
	}
	payload := s.build(m)

	done := make(chan error, 1)
	go func() {
		done <- s.deliver(m, payload)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (s *SMTPMailer) deliver(m *Message, payload []byte) error {
	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	tlsCfg := &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.SkipTLSVerify,
	}

	var (
		client *smtp.Client
		err    error
	)
	if s.Port == 465 {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return fmt.Errorf("dial tls: %w", err)
		}
		if client, err = smtp.NewClient(conn, s.Host); err != nil {
			conn.Close()
			return fmt.Errorf("smtp new client: %w", err)
		}
	} else {
		if client, err = smtp.Dial(addr); err != nil {
			return fmt.Errorf("smtp dial: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err = client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return fmt.Errorf("start tls: %w", err)
			}
		}
	}
	defer client.Close()

	if s.Username != "" {
		if err = client.Auth(smtp.PlainAuth("", s.Username, s.Password, s.Host)); err != nil {
			return fmt.Errorf("client auth: %w", err)
		}
	}
	if err = client.Mail(m.From.Address); err != nil {
		return fmt.Errorf("client mail: %w", err)
	}
	for _, a := range m.To {
		if err = client.Rcpt(a.Address); err != nil {
			return fmt.Errorf("client rcpt: %s: %w", a.Address, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("client data: %w", err)
	}
	if _, err = w.Write(payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("writer close: %w", err)
	}

	return client.Quit()
}
