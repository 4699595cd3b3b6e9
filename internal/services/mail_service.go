package services

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/mail"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"

	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/version"
)

// ErrMailNotConfigured is returned when delivery is attempted without an SMTP relay.
var ErrMailNotConfigured = errors.New("SMTP not configured")

// MailService sends password reset mail through the configured SMTP relay.
type MailService struct {
	cfg config.MailConfig
}

// NewMailService creates a mail service for cfg.
func NewMailService(cfg config.MailConfig) *MailService {
	return &MailService{cfg: cfg}
}

// IsConfigured returns true if SMTP is properly configured.
func (s *MailService) IsConfigured() bool {
	return s != nil && s.cfg.Enabled()
}

// SendEmail sends an HTML email to a single recipient.
func (s *MailService) SendEmail(to, subject, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrMailNotConfigured
	}
	if err := validateEmailAddress(to); err != nil {
		return fmt.Errorf("recipient: %w", err)
	}
	if err := validateEmailAddress(s.cfg.FromAddress); err != nil {
		return fmt.Errorf("sender: %w", err)
	}

	msg := s.buildEmail(s.cfg.FromAddress, to, subject, htmlBody)
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	switch s.cfg.Encryption {
	case config.MailEncryptionSSL:
		conn, err := tls.Dial("tcp", addr, s.tlsConfig())
		if err != nil {
			return fmt.Errorf("SSL connection failed: %w", err)
		}
		client, err := smtp.NewClient(conn, s.cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
		return s.deliver(client, auth, to, msg)
	case config.MailEncryptionSTARTTLS:
		client, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("SMTP connection failed: %w", err)
		}
		if err := client.StartTLS(s.tlsConfig()); err != nil {
			client.Close()
			return fmt.Errorf("STARTTLS failed: %w", err)
		}
		return s.deliver(client, auth, to, msg)
	default:
		client, err := smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("SMTP connection failed: %w", err)
		}
		return s.deliver(client, auth, to, msg)
	}
}

func (s *MailService) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: s.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}

// deliver runs one SMTP transaction and closes client.
func (s *MailService) deliver(client *smtp.Client, auth smtp.Auth, to string, msg []byte) error {
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}
	if err := client.Mail(s.cfg.FromAddress); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}

// buildEmail constructs the message with a fixed header order. Header values
// are stripped of control characters so a subject cannot smuggle extra headers.
func (s *MailService) buildEmail(from, to, subject, htmlBody string) []byte {
	headers := [][2]string{
		{"From", sanitizeEmailHeader(from)},
		{"To", sanitizeEmailHeader(to)},
		{"Subject", sanitizeEmailHeader(subject)},
		{"MIME-Version", "1.0"},
		{"Content-Type", "text/html; charset=UTF-8"},
	}

	var msg bytes.Buffer
	for _, h := range headers {
		msg.WriteString(h[0])
		msg.WriteString(": ")
		msg.WriteString(h[1])
		msg.WriteString("\r\n")
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.AppName}} password reset</title></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="margin-top: 0;">Reset your {{.AppName}} password</h2>
    <p>A password reset was requested for this address. The request expires in {{.Expires}}.</p>
    {{if .ResetURL}}<p><a href="{{.ResetURL}}">Choose a new password</a></p>{{end}}
    <p>Reset token:</p>
    <pre style="background: #f4f4f4; padding: 10px;">{{.Token}}</pre>
    <p style="color: #666; font-size: 14px;">If you did not ask for this, you can ignore this email. Your password has not changed.</p>
</body>
</html>
`))

// SendPasswordReset mails token to email, linking to the configured reset page.
func (s *MailService) SendPasswordReset(email, token string) error {
	resetURL := ""
	if s.cfg.ResetURL != "" {
		u, err := url.Parse(s.cfg.ResetURL)
		if err != nil {
			return fmt.Errorf("reset url: %w", err)
		}
		q := u.Query()
		q.Set("token", token)
		q.Set("email", email)
		u.RawQuery = q.Encode()
		resetURL = u.String()
	}

	var body bytes.Buffer
	if err := resetTemplate.Execute(&body, map[string]string{
		"AppName":  version.Name,
		"ResetURL": resetURL,
		"Token":    token,
		"Expires":  resetTokenTTL.String(),
	}); err != nil {
		return fmt.Errorf("failed to execute email template: %w", err)
	}

	logger.Component("mail").WithField("email", email).Info("sending password reset email")
	return s.SendEmail(email, version.Name+" password reset", body.String())
}

// sanitizeEmailHeader drops every control character from a header value.
func sanitizeEmailHeader(v string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, v)
}

func validateEmailAddress(addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}
	if strings.ContainsAny(addr, "\r\n") {
		return errors.New("address contains line breaks")
	}
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}
