package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"craiseek/config"
	"craiseek/models"
)

// EmailSender delivers alerts over plain SMTP. Port 465 gets implicit TLS;
// everything else upgrades via STARTTLS when the server offers it.
type EmailSender struct {
	cfg config.SMTPConfig
}

func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	return &EmailSender{cfg: cfg}
}

func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

func (s *EmailSender) Send(ctx context.Context, address, message string) error {
	if address == "" || !strings.Contains(address, "@") {
		return &DeliveryError{Kind: KindInvalidAddress}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	client, err := s.dial(ctx, addr)
	if err != nil {
		return classifyTransport(err)
	}
	defer client.Close()

	if s.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
				return &DeliveryError{Kind: KindProviderError, Cause: err}
			}
		}
	}

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &DeliveryError{Kind: KindProviderError, Cause: err}
		}
	}

	if err := client.Mail(s.cfg.FromAddress); err != nil {
		return &DeliveryError{Kind: KindProviderError, Cause: err}
	}
	if err := client.Rcpt(address); err != nil {
		// The server rejected the recipient specifically.
		return &DeliveryError{Kind: KindInvalidAddress, Cause: err}
	}

	w, err := client.Data()
	if err != nil {
		return &DeliveryError{Kind: KindProviderError, Cause: err}
	}
	if _, err := w.Write(s.buildMessage(address, message)); err != nil {
		w.Close()
		return &DeliveryError{Kind: KindProviderError, Cause: err}
	}
	if err := w.Close(); err != nil {
		return &DeliveryError{Kind: KindProviderError, Cause: err}
	}
	return client.Quit()
}

func (s *EmailSender) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if s.cfg.Port == 465 {
		conn = tls.Client(conn, &tls.Config{ServerName: s.cfg.Host})
	}
	return smtp.NewClient(conn, s.cfg.Host)
}

func (s *EmailSender) buildMessage(to, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: New rental listing\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
