package mailer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"ms-boxoffice/internal/config"
	"ms-boxoffice/internal/logger"

	"github.com/wneessen/go-mail"
)

// Attachment is an inline image referenced from the HTML body as cid:ContentID.
type Attachment struct {
	ContentID string
	Filename  string
	Data      []byte
}

type Message struct {
	To      []string
	Subject string
	HTML    string
	Inline  []Attachment
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTP delivers through the configured relay.
type SMTP struct {
	cfg config.EmailConfig
	log *logger.Logger
}

func NewSMTP(cfg config.EmailConfig, log *logger.Logger) *SMTP {
	return &SMTP{cfg: cfg, log: log}
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m, err := build(s.cfg.From, msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(30 * time.Second),
	}
	if s.cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.SMTPUsername),
			mail.WithPassword(s.cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(s.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("smtp client for %s: %w", s.cfg.SMTPHost, err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send %q to %s: %w", msg.Subject, strings.Join(msg.To, ","), err)
	}
	s.log.Info("EMAIL", fmt.Sprintf("Sent %q to %s", msg.Subject, strings.Join(msg.To, ",")))
	return nil
}

func build(from string, msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", from, err)
	}
	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient %v: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)

	for _, a := range msg.Inline {
		err := m.EmbedReader(a.Filename, bytes.NewReader(a.Data),
			mail.WithFileContentID(a.ContentID),
			mail.WithFileContentType(mail.ContentType("image/png")),
		)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", a.Filename, err)
		}
	}
	return m, nil
}

// Log only logs messages. Used when no SMTP relay is configured.
type Log struct {
	log *logger.Logger
}

func NewLog(log *logger.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(_ context.Context, msg Message) error {
	if _, err := build("noreply@localhost", msg); err != nil {
		return err
	}
	l.log.Info("EMAIL", fmt.Sprintf("[dry-run] %q to %s (%d inline images)", msg.Subject, strings.Join(msg.To, ","), len(msg.Inline)))
	return nil
}
