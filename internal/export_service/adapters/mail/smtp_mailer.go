package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net"
	netmail "net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
)

const (
	DefaultPort        = 587
	DefaultDialTimeout = 30 * time.Second
	implicitTLSPort    = 465
	base64LineLength   = 76
)

var ErrInvalidAddress = errors.New("invalid mail address")

// Config holds the SMTP settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string // RFC 5322 address, e.g. `"IUT Project" <noreply@iut-project.com>`
	DialTimeout time.Duration
}

// SMTPMailer sends HTML mail with attachments over SMTP.
// Port 465 uses implicit TLS; other ports upgrade with STARTTLS when the server offers it.
type SMTPMailer struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewSMTPMailer(cfg Config, logger *slog.Logger) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &SMTPMailer{
		cfg:    cfg,
		logger: logger.With("component", "smtp_mailer"),
		now:    time.Now,
	}
}

// Send delivers one message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string, attachments []exportDomain.Attachment) (*exportDomain.DeliveryInfo, error) {
	from, err := netmail.ParseAddress(m.cfg.From)
	if err != nil {
		return nil, fmt.Errorf("%w: from %q: %w", ErrInvalidAddress, m.cfg.From, err)
	}
	rcpt, err := netmail.ParseAddress(to)
	if err != nil {
		return nil, fmt.Errorf("%w: to %q: %w", ErrInvalidAddress, to, err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(from.Address))
	msg, err := m.buildMessage(from, rcpt, subject, htmlBody, attachments, messageID)
	if err != nil {
		return nil, fmt.Errorf("build message: %w", err)
	}

	if err := m.sendSMTP(ctx, from.Address, rcpt.Address, msg); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Mail sent", "to", rcpt.Address, "message_id", messageID, "attachments", len(attachments))
	return &exportDomain.DeliveryInfo{MessageID: messageID, Accepted: []string{rcpt.Address}}, nil
}

// buildMessage renders a multipart/mixed message: the HTML body followed by one
// base64 part per attachment.
func (m *SMTPMailer) buildMessage(from, to *netmail.Address, subject, htmlBody string, attachments []exportDomain.Attachment, messageID string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	headers := []struct{ key, value string }{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", subject)},
		{"Date", m.now().Format(time.RFC1123Z)},
		{"Message-ID", messageID},
		{"MIME-Version", "1.0"},
		{"Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mw.Boundary())},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h.key, h.value)
	}
	buf.WriteString("\r\n")

	htmlPart, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return nil, err
	}
	qp := quotedprintable.NewWriter(htmlPart)
	if _, err := qp.Write([]byte(htmlBody)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}

	for _, att := range attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": att.Filename})},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, err
		}
		if err := writeBase64Lines(part, att.Content); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeBase64Lines(w interface{ Write([]byte) (int, error) }, content []byte) error {
	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 0 {
		n := min(base64LineLength, len(encoded))
		if _, err := w.Write([]byte(encoded[:n] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return nil
}

// sendSMTP runs one SMTP transaction. Cancelling ctx aborts it by closing the connection.
func (m *SMTPMailer) sendSMTP(ctx context.Context, from, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := &net.Dialer{Timeout: m.cfg.DialTimeout}
	var conn net.Conn
	var err error
	if m.cfg.Port == implicitTLSPort {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: m.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if m.cfg.Port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(m.tlsConfig()); err != nil {
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := wc.Write(msg); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	if err := client.Quit(); err != nil {
		// The server already accepted the message at this point.
		m.logger.WarnContext(ctx, "SMTP QUIT failed", "error", err)
	}
	return nil
}

func (m *SMTPMailer) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName: m.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}
}

func domainOf(address string) string {
	if i := strings.LastIndexByte(address, '@'); i >= 0 && i < len(address)-1 {
		return address[i+1:]
	}
	return "localhost"
}
