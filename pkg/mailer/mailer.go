package mailer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"taskflow/pkg/config"
)

const DefaultFrom = `"TaskFlow Support" <support@taskflow.com>`

var ErrNotConfigured = errors.New("smtp is not configured")

// Message 一封 HTML 邮件
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender 由 SMTPMailer 实现，测试里用假的替换
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer 通过 net/smtp 投递
type SMTPMailer struct {
	cfg    config.SMTPConfig
	send   sendFunc
	logger *zap.Logger
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	if cfg.From == "" {
		cfg.From = DefaultFrom
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail, logger: logger}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(msg.To, "\r\n") || strings.ContainsAny(msg.Subject, "\r\n") {
		return fmt.Errorf("invalid header value")
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	if err := m.send(addr, auth, envelopeFrom(m.cfg), []string{msg.To}, buildMessage(m.cfg.From, msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Debug("Mail sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// envelopeFrom MAIL FROM 只能是纯地址
func envelopeFrom(cfg config.SMTPConfig) string {
	from := cfg.From
	if i := strings.LastIndex(from, "<"); i >= 0 {
		from = strings.TrimSuffix(from[i+1:], ">")
	}
	if from == "" {
		return cfg.User
	}
	return from
}

func buildMessage(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}
