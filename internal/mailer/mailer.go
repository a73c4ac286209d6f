// Package mailer sends certificate emails over SMTP with STARTTLS,
// multipart alternative bodies and a PDF attachment.
package mailer

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"provident-certs/internal/config"
)

// Message is one outbound certificate email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string

	// AttachmentName and Attachment are optional. The attachment is
	// always sent as application/pdf.
	AttachmentName string
	Attachment     []byte
}

// Mailer sends mail through one configured SMTP account. When the
// config's TestingMode is on, every recipient is replaced with
// TestOverride before the message leaves the building.
type Mailer struct {
	cfg    *config.SMTPConfig
	logger *zap.Logger

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func New(cfg *config.SMTPConfig, logger *zap.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	m.send = m.sendSTARTTLS
	return m
}

// Configured reports whether SMTP credentials are present.
func (m *Mailer) Configured() bool {
	return m.cfg.User != "" && m.cfg.Password != ""
}

// Send delivers the message. Returns the address actually delivered to,
// which differs from msg.To in testing mode.
func (m *Mailer) Send(msg *Message) (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("smtp not configured")
	}

	to := msg.To
	if m.cfg.TestingMode && m.cfg.TestOverride != "" {
		m.logger.Info("Testing mode, redirecting email",
			zap.String("original_recipient", msg.To),
			zap.String("redirected_to", m.cfg.TestOverride),
		)
		to = m.cfg.TestOverride
	}

	raw := m.build(to, msg)
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)

	if err := m.send(addr, auth, m.cfg.FromEmail, []string{to}, raw); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", to, err)
	}

	m.logger.Info("Email sent",
		zap.String("recipient", to),
		zap.String("subject", msg.Subject),
	)
	return to, nil
}

const (
	mixedBoundary = "provident-mixed-7f3a1c"
	altBoundary   = "provident-alt-7f3a1c"
)

func (m *Mailer) build(to string, msg *Message) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s <%s>\r\n", mime.QEncoding.Encode("utf-8", m.cfg.FromName), m.cfg.FromEmail)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixedBoundary)

	fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", altBoundary)

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.TextBody)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", altBoundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	b.WriteString(msg.HTMLBody)
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "--%s--\r\n", altBoundary)

	if len(msg.Attachment) > 0 {
		name := msg.AttachmentName
		if name == "" {
			name = "certificate.pdf"
		}
		fmt.Fprintf(&b, "--%s\r\n", mixedBoundary)
		b.WriteString("Content-Type: application/pdf\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", name)
		b.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(msg.Attachment)))
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", mixedBoundary)
	return []byte(b.String())
}

func (m *Mailer) sendSTARTTLS(addr string, a smtp.Auth, from string, to []string, raw []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if err := c.Auth(a); err != nil {
		return err
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// wrapBase64 folds encoded attachment data at 76 columns for RFC 2045.
func wrapBase64(s string) string {
	const width = 76
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
