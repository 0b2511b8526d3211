package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"time"

	"go.uber.org/zap"

	"gullin-backend/config"
	"gullin-backend/utils"
)

//go:embed templates/*.html
var templateFS embed.FS

type Mailer interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

const (
	subjectVerification = "Gullin - Your verification code"
	subjectSecurity     = "Gullin - New sign-in to your account"
	subjectKYCSuccess   = "Gullin - ID Verification Success"
	subjectKYCFailed    = "Gullin - ID Verification Failed"
	subjectTeamReview   = "A KYC Request Needs Manual Review"
)

// Notifier renders the user-facing messages and hands them to a transport.
type Notifier struct {
	mailer    Mailer
	sms       SMSSender
	teamEmail string
	reviewURL string
	templates *template.Template
}

func New(mailer Mailer, sms SMSSender, cfg config.NotificationConfig) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse email templates: %w", err)
	}
	return &Notifier{
		mailer:    mailer,
		sms:       sms,
		teamEmail: cfg.TeamEmail,
		reviewURL: cfg.AdminReviewURL,
		templates: tmpl,
	}, nil
}

func (n *Notifier) render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := n.templates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (n *Notifier) send(ctx context.Context, to, subject, tmpl string, data interface{}) error {
	body, err := n.render(tmpl, data)
	if err != nil {
		return err
	}
	return n.mailer.SendEmail(ctx, to, subject, body)
}

func (n *Notifier) EmailCode(ctx context.Context, to, code string) error {
	return n.send(ctx, to, subjectVerification, "verification_code", map[string]interface{}{
		"Code":         code,
		"ValidMinutes": 5,
	})
}

func (n *Notifier) SMSCode(ctx context.Context, phone, code string) error {
	return n.sms.SendSMS(ctx, phone, fmt.Sprintf("Your Gullin verification code is %s", code))
}

type SecurityAlert struct {
	IP       string
	Device   string
	Location string
	Time     time.Time
}

func (n *Notifier) SecurityAlert(ctx context.Context, to string, alert SecurityAlert) error {
	return n.send(ctx, to, subjectSecurity, "security_alert", map[string]interface{}{
		"IP":       alert.IP,
		"Device":   alert.Device,
		"Location": alert.Location,
		"Time":     alert.Time.UTC().Format(time.RFC1123),
	})
}

func (n *Notifier) KYCSuccess(ctx context.Context, to, name string) error {
	return n.send(ctx, to, subjectKYCSuccess, "kyc_success", map[string]string{"Name": name})
}

func (n *Notifier) KYCFailed(ctx context.Context, to, name string) error {
	return n.send(ctx, to, subjectKYCFailed, "kyc_failed", map[string]string{"Name": name})
}

// TeamReview asks the team to look at a verification. stage is 0 when the
// request has not reached the provider yet.
func (n *Notifier) TeamReview(ctx context.Context, investorEmail, name, tid string, stage int) error {
	subject := subjectTeamReview
	if stage > 0 {
		subject = fmt.Sprintf("%s (Stage %d)", subjectTeamReview, stage)
	}
	return n.send(ctx, n.teamEmail, subject, "team_review", map[string]interface{}{
		"Email":     investorEmail,
		"Name":      name,
		"TID":       tid,
		"Stage":     stage,
		"ReviewURL": n.reviewURL,
	})
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) SendEmail(_ context.Context, to, subject, htmlBody string) error {
	utils.Logger().Info("email (not sent)",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(htmlBody)))
	return nil
}

type LogSMS struct{}

func (LogSMS) SendSMS(_ context.Context, phone, message string) error {
	utils.Logger().Info("sms (not sent)", zap.String("phone", phone), zap.String("message", message))
	return nil
}
