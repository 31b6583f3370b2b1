// Package email provides SMTP delivery for auto-replies.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/quantumlife/watchtower/internal/autoreply"
	"github.com/quantumlife/watchtower/internal/core"
	"github.com/quantumlife/watchtower/internal/logging"
)

// Sender handles email delivery
type Sender struct {
	config Config
	logger *logging.Logger
}

// Config configures the email sender
type Config struct {
	SMTPHost    string
	SMTPPort    int
	Username    string
	Password    string
	FromEmail   string
	FromName    string
	UseTLS      bool
	UseStartTLS bool
	Timeout     time.Duration
}

// DefaultConfig returns config from environment
func DefaultConfig() Config {
	port := 587
	if os.Getenv("SMTP_PORT") != "" {
		fmt.Sscanf(os.Getenv("SMTP_PORT"), "%d", &port)
	}

	return Config{
		SMTPHost:    os.Getenv("SMTP_HOST"),
		SMTPPort:    port,
		Username:    os.Getenv("SMTP_USERNAME"),
		Password:    os.Getenv("SMTP_PASSWORD"),
		FromEmail:   os.Getenv("SMTP_FROM_EMAIL"),
		FromName:    getEnvOrDefault("SMTP_FROM_NAME", "Watchtower"),
		UseTLS:      os.Getenv("SMTP_USE_TLS") == "true",
		UseStartTLS: getEnvOrDefault("SMTP_USE_STARTTLS", "true") == "true",
		Timeout:     30 * time.Second,
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// NewSender creates a new email sender
func NewSender(cfg Config) *Sender {
	return &Sender{
		config: cfg,
		logger: logging.WithField("component", "email"),
	}
}

// IsConfigured reports whether the sender has enough config to deliver mail.
func (s *Sender) IsConfigured() bool {
	return s.config.SMTPHost != "" && s.config.FromEmail != ""
}

// Send delivers an auto-reply over SMTP. It satisfies the sender interface
// the auto-reply gate expects.
func (s *Sender) Send(ctx context.Context, userID string, msg *autoreply.Message) error {
	if !s.IsConfigured() {
		return core.ErrSenderUnavailable
	}
	if msg.To == "" {
		return fmt.Errorf("%w: empty recipient", core.ErrInvalidInput)
	}

	email := s.buildEmail(msg)

	addr := fmt.Sprintf("%s:%d", s.config.SMTPHost, s.config.SMTPPort)

	var conn net.Conn
	var err error
	dialer := net.Dialer{Timeout: s.config.Timeout}

	if s.config.UseTLS {
		tlsConfig := &tls.Config{ServerName: s.config.SMTPHost}
		conn, err = tls.DialWithDialer(&dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if s.config.UseStartTLS && !s.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			tlsConfig := &tls.Config{ServerName: s.config.SMTPHost}
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if s.config.Username != "" && s.config.Password != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.config.FromEmail); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := w.Write(email); err != nil {
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	s.logger.WithField("user_id", userID).Debug("auto-reply delivered")

	return client.Quit()
}

// buildEmail constructs the raw email bytes for a plain-text reply.
func (s *Sender) buildEmail(msg *autoreply.Message) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.FromEmail))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", sanitizeHeader(msg.Subject)))
	buf.WriteString(fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Auto-Submitted: auto-replied\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.Body)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// sanitizeHeader strips CRLF so message content cannot inject headers.
func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.ReplaceAll(v, "\n", " ")
}
