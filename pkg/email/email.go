// Package email delivers multipart alert emails over SMTP.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds SMTP settings.
type Config struct {
	Server      string
	Port        int
	Username    string
	Password    string
	FromName    string
	FromAddress string
}

// Message is one email to one recipient.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Client struct {
	cfg    Config
	dialer *net.Dialer
}

func New(cfg Config) *Client {
	return &Client{cfg: cfg, dialer: &net.Dialer{Timeout: 30 * time.Second}}
}

// Send delivers msg and returns its Message-ID.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !strings.Contains(msg.To, "@") {
		return "", fmt.Errorf("invalid email address: %s", msg.To)
	}

	from := mail.Address{Name: c.cfg.FromName, Address: c.cfg.FromAddress}
	messageID := NewMessageID(c.cfg.FromAddress)
	raw, err := BuildMessage(from, msg, messageID, "alert-"+uuid.NewString())
	if err != nil {
		return "", err
	}

	client, err := c.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if c.cfg.Username != "" && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Username, c.cfg.Password, c.cfg.Server)
		if err := client.Auth(auth); err != nil {
			return "", fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(c.cfg.FromAddress); err != nil {
		return "", fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return "", fmt.Errorf("failed to add recipient %s: %w", msg.To, err)
	}
	w, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close data: %w", err)
	}
	if err := client.Quit(); err != nil {
		return "", fmt.Errorf("failed to quit SMTP session: %w", err)
	}
	return messageID, nil
}

// connect uses implicit TLS on 465 and STARTTLS elsewhere when offered. The
// context deadline bounds the whole SMTP dialogue, not only the dial.
func (c *Client) connect(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(c.cfg.Server, fmt.Sprint(c.cfg.Port))
	tlsConfig := &tls.Config{ServerName: c.cfg.Server}

	var conn net.Conn
	var err error
	if c.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: c.dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = c.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if c.cfg.Port == 465 {
		return smtp.NewClient(conn, c.cfg.Server)
	}

	client, err := smtp.NewClient(conn, c.cfg.Server)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(tlsConfig); err != nil {
			client.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}
	return client, nil
}

// NewMessageID returns a unique Message-ID in the sender's domain.
func NewMessageID(fromAddress string) string {
	domain := "localhost"
	if at := strings.LastIndex(fromAddress, "@"); at >= 0 && at < len(fromAddress)-1 {
		domain = fromAddress[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// BuildMessage renders a multipart/alternative message with high priority headers.
func BuildMessage(from mail.Address, msg Message, messageID, boundary string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from.String())
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&buf, "Message-ID: %s\r\n", messageID)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("X-Priority: 1\r\n")
	buf.WriteString("X-MSMail-Priority: High\r\n")
	buf.WriteString("Importance: high\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; charset=UTF-8\r\n", p.contentType)
		buf.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		qp := quotedprintable.NewWriter(&buf)
		if _, err := qp.Write([]byte(p.body)); err != nil {
			return nil, fmt.Errorf("failed to encode %s part: %w", p.contentType, err)
		}
		if err := qp.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode %s part: %w", p.contentType, err)
		}
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes(), nil
}
