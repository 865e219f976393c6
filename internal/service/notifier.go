package service

import (
	"context"
	"sync"
	"time"

	"github.com/Payphone-Digital/auth-service/internal/constants"
	apperrors "github.com/Payphone-Digital/auth-service/internal/errors"
	"github.com/Payphone-Digital/auth-service/internal/model"
	ctxutil "github.com/Payphone-Digital/auth-service/pkg/context"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
)

// TemplateSender is satisfied by *mail.TemplateMailer.
type TemplateSender interface {
	SendTemplate(ctx context.Context, to mail.Address, subject, name string, data any) error
}

// Notifier sends user mail and publishes auth events. Everything except
// SendOTP runs as a detached best-effort task.
type Notifier struct {
	mailer    TemplateSender
	publisher queue.Publisher
	appName   string
	otpExpiry time.Duration
	timeout   time.Duration
	wg        sync.WaitGroup
}

func NewNotifier(mailer TemplateSender, publisher queue.Publisher, appName string, otpExpiry time.Duration) *Notifier {
	if publisher == nil {
		publisher = queue.NoopPublisher{}
	}
	if appName == "" {
		appName = constants.AppName
	}
	return &Notifier{
		mailer:    mailer,
		publisher: publisher,
		appName:   appName,
		otpExpiry: otpExpiry,
		timeout:   constants.BackgroundTaskTimeout,
	}
}

// Go runs fn detached from the request's cancellation with its own
// timeout. Errors are logged.
func (n *Notifier) Go(ctx context.Context, task string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			logger.WarnWithContext(ctx, "Background task failed").
				String("task", task).
				Err(err).
				Log()
		}
	}()
}

// Wait blocks until in-flight tasks finish or ctx is done.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) data(ctx context.Context, user *model.User) mail.TemplateData {
	return mail.TemplateData{
		AppName:          n.appName,
		Name:             user.DisplayName(),
		ExpiresInMinutes: int(n.otpExpiry / time.Minute),
		Time:             time.Now(),
		IP:               ctxutil.GetClientIP(ctx),
		UserAgent:        ctxutil.GetUserAgent(ctx),
	}
}

func (n *Notifier) send(ctx context.Context, user *model.User, subject, template string, data mail.TemplateData) error {
	if n.mailer == nil || constants.IsSyntheticEmail(user.Email) {
		return nil
	}
	err := n.mailer.SendTemplate(ctx, mail.Address{Name: user.DisplayName(), Address: user.Email}, subject, template, data)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrMailFailed, err)
	}
	return nil
}

// SendOTP delivers a verification code synchronously and returns the
// delivery error.
func (n *Notifier) SendOTP(ctx context.Context, user *model.User, code string) error {
	data := n.data(ctx, user)
	data.Code = code
	return n.send(ctx, user, "Your verification code", mail.TemplateOTP, data)
}

func (n *Notifier) OTPAsync(ctx context.Context, user *model.User, code string) {
	u := *user
	n.Go(ctx, "mail.otp", func(ctx context.Context) error {
		return n.SendOTP(ctx, &u, code)
	})
}

func (n *Notifier) PasswordResetAsync(ctx context.Context, user *model.User, code string) {
	u := *user
	data := n.data(ctx, user)
	data.Code = code
	n.Go(ctx, "mail.password_reset", func(ctx context.Context) error {
		return n.send(ctx, &u, "Reset your password", mail.TemplatePasswordReset, data)
	})
}

func (n *Notifier) WelcomeAsync(ctx context.Context, user *model.User, provider string) {
	u := *user
	data := n.data(ctx, user)
	data.Provider = provider
	n.Go(ctx, "mail.welcome", func(ctx context.Context) error {
		return n.send(ctx, &u, "Welcome to "+n.appName, mail.TemplateWelcome, data)
	})
}

func (n *Notifier) LoginAlertAsync(ctx context.Context, user *model.User, provider string) {
	u := *user
	data := n.data(ctx, user)
	data.Provider = provider
	n.Go(ctx, "mail.login_alert", func(ctx context.Context) error {
		return n.send(ctx, &u, "New sign-in to your account", mail.TemplateLoginAlert, data)
	})
}

// Publish emits an auth event in the background.
func (n *Notifier) Publish(ctx context.Context, eventType, userID string, data map[string]string) {
	event := queue.NewEvent(eventType, userID, data)
	n.Go(ctx, "event."+eventType, func(ctx context.Context) error {
		return n.publisher.Publish(ctx, event)
	})
}
