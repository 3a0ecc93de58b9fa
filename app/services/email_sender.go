package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/CHINMAYKUDALKAR/LINE-sub002/config"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/models"
	"github.com/CHINMAYKUDALKAR/LINE-sub002/utils"
	"github.com/google/uuid"
)

// SendMailFunc matches smtp.SendMail so tests can capture outgoing mail
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPEmailSender delivers email through an SMTP relay
type SMTPEmailSender struct {
	cfg      *config.EmailConfig
	sendMail SendMailFunc
}

// NewSMTPEmailSender creates a new SMTP email sender
func NewSMTPEmailSender(cfg *config.EmailConfig) *SMTPEmailSender {
	return &SMTPEmailSender{cfg: cfg, sendMail: smtp.SendMail}
}

// WithSendMail replaces the transport, used by tests
func (s *SMTPEmailSender) WithSendMail(fn SendMailFunc) *SMTPEmailSender {
	s.sendMail = fn
	return s
}

func (s *SMTPEmailSender) Channel() models.MessageChannel { return models.MessageChannelEmail }

func (s *SMTPEmailSender) Provider() string { return "smtp" }

// Send builds a MIME message and hands it to the relay. The generated Message-ID is
// the external id, which bounce notifications quote back.
func (s *SMTPEmailSender) Send(ctx context.Context, msg OutboundMessage) (*SendResult, error) {
	if msg.To == "" {
		return nil, Permanent(ErrMissingAddress)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, Permanent(fmt.Errorf("invalid email address %q: %w", msg.To, err))
	}

	domain := "localhost"
	if at := strings.LastIndex(s.cfg.FromEmail, "@"); at >= 0 {
		domain = s.cfg.FromEmail[at+1:]
	}
	ref := msg.Reference
	if ref == "" {
		ref = uuid.NewString()
	}
	messageID := fmt.Sprintf("%s@%s", ref, domain)

	from := mail.Address{Name: s.cfg.FromName, Address: s.cfg.FromEmail}
	var buf bytes.Buffer
	headers := [][2]string{
		{"From", from.String()},
		{"To", to.String()},
		{"Subject", mime.QEncoding.Encode("utf-8", msg.Subject)},
		{"Message-ID", "<" + messageID + ">"},
		{"Date", utils.UTCNow().Format(time.RFC1123Z)},
		{"MIME-Version", "1.0"},
		{"Content-Type", contentType(msg.Body)},
		{"Content-Transfer-Encoding", "8bit"},
	}
	for _, h := range headers {
		fmt.Fprintf(&buf, "%s: %s\r\n", h[0], h[1])
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.FromEmail, []string{to.Address}, buf.Bytes())
	}()

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case err := <-done:
		if err != nil {
			return nil, classifySMTPError(err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, fmt.Errorf("smtp send timed out after %s", timeout)
	}

	return &SendResult{ExternalID: messageID, Provider: s.Provider()}, nil
}

func contentType(body string) string {
	trimmed := strings.TrimSpace(strings.ToLower(body))
	if strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html") {
		return `text/html; charset="utf-8"`
	}
	return `text/plain; charset="utf-8"`
}

// classifySMTPError treats 5xx replies as permanent and everything else as transient
func classifySMTPError(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return Permanent(fmt.Errorf("smtp rejected message: %w", err))
	}
	return fmt.Errorf("smtp send failed: %w", err)
}
