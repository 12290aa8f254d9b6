package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

// Config holds SMTP settings. An empty Host disables sending; jobs are
// still logged so local development works without a mail server.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends transactional email over SMTP.
type Mailer struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a mailer.
func New(cfg Config, logger *zap.Logger) *Mailer {
	return &Mailer{cfg: cfg, logger: logger}
}

// Enabled reports whether SMTP delivery is configured.
func (m *Mailer) Enabled() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

// Send delivers a single HTML email.
func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !m.Enabled() {
		m.logger.Info("smtp not configured, skipping send", zap.String("to", to), zap.String("subject", subject))
		return nil
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := buildMessage(m.cfg.From, to, subject, htmlBody)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	return []byte(b.String())
}

var invitationTmpl = template.Must(template.New("invitation").Parse(`<html><body>
<p>Hi,</p>
<p>{{.InviterName}} invited you to join <strong>{{.OrgName}}</strong> as {{.Role}}.</p>
<p><a href="{{.AcceptURL}}">Accept the invitation</a></p>
<p>If you weren't expecting this, you can ignore this email.</p>
</body></html>`))

// InvitationEmail renders the subject and HTML body for an organization invitation.
func InvitationEmail(orgName, inviterName, role, acceptURL string) (subject, html string, err error) {
	var buf bytes.Buffer
	err = invitationTmpl.Execute(&buf, map[string]string{
		"OrgName":     orgName,
		"InviterName": inviterName,
		"Role":        role,
		"AcceptURL":   acceptURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("render invitation: %w", err)
	}
	return fmt.Sprintf("You're invited to join %s", orgName), buf.String(), nil
}
