// Package email delivers purchase confirmations over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html/template"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"github.com/brojonat/craftmint/service/config"
)

// ErrNotConfigured is returned by Send when SMTP credentials are missing.
var ErrNotConfigured = errors.New("email is not configured")

// Message is a multipart email with a plain-text and an HTML body.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer sends messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail over implicit TLS (SMTPS, usually port 465).
type SMTPMailer struct {
	cfg         config.SMTPConfig
	dialTimeout time.Duration
	tlsConfig   *tls.Config
}

// NewSMTPMailer creates a mailer from cfg. The returned mailer is usable
// even when cfg is incomplete; Send then fails with ErrNotConfigured.
func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		cfg:         cfg,
		dialTimeout: 15 * time.Second,
		tlsConfig:   &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// Configured reports whether Send can deliver mail.
func (m *SMTPMailer) Configured() bool {
	return m.cfg.Configured()
}

// Send delivers msg. The context deadline bounds the whole SMTP exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if !m.Configured() {
		return ErrNotConfigured
	}
	if msg.To == "" {
		return errors.New("recipient address is required")
	}

	body, err := BuildMessage(m.cfg.Username, msg)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: m.dialTimeout},
		Config:    m.tlsConfig,
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := c.Mail(m.cfg.Username); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return c.Quit()
}

// BuildMessage renders msg as a multipart/alternative RFC 5322 message.
func BuildMessage(from string, msg Message) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=utf-8", msg.Text},
		{"text/html; charset=utf-8", msg.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {p.contentType}})
		if err != nil {
			return nil, fmt.Errorf("create mime part: %w", err)
		}
		if _, err := pw.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("write mime part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close mime writer: %w", err)
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "From: %s\r\n", from)
	fmt.Fprintf(&out, "To: %s\r\n", msg.To)
	fmt.Fprintf(&out, "Subject: %s\r\n", msg.Subject)
	out.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&out, "Content-Type: multipart/alternative; boundary=%q\r\n", mw.Boundary())
	out.WriteString("\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

var purchaseTemplate = template.Must(template.New("purchase").Parse(`<html>
  <body>
    <h1>Congratulations! You've purchased an artifact!</h1>
    <p>Artifact {{.ArtifactID}}</p>
    <img src="{{.ImageURI}}" alt="Your artifact" style="max-width: 100%; height: auto;">
    {{if .ArtifactURI}}<p><a href="{{.ArtifactURI}}">View the artifact metadata</a></p>{{end}}
    <p><a href="{{.ImageURI}}" download>Download your artifact</a></p>
  </body>
</html>`))

// PurchaseDetails are the values shown in a purchase confirmation.
type PurchaseDetails struct {
	ArtifactID  string
	ImageURI    string
	ArtifactURI string
}

// PurchaseMessage renders the confirmation sent after a purchase.
func PurchaseMessage(to string, d PurchaseDetails) (Message, error) {
	var html bytes.Buffer
	if err := purchaseTemplate.Execute(&html, d); err != nil {
		return Message{}, fmt.Errorf("render purchase email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Your New Artifact!",
		Text:    fmt.Sprintf("See your new artifact: %s\n", d.ImageURI),
		HTML:    html.String(),
	}, nil
}
