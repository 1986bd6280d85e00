package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"text/template"
	"time"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppName  string
}

// SMTPNotifier mails a plain-text receipt over STARTTLS.
type SMTPNotifier struct {
	cfg SMTPConfig
	tpl *template.Template
}

const receiptTemplate = `Dear parent/guardian,

We have received a payment for {{.StudentName}}.

Receipt number: {{.ReceiptNumber}}
Amount:         {{.Amount}} {{.Currency}}
Method:         {{.Method}}
Date:           {{.Date}}

Thank you.
{{.AppName}}
`

type receiptView struct {
	StudentName   string
	ReceiptNumber string
	Amount        string
	Currency      string
	Method        string
	Date          string
	AppName       string
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	if cfg.AppName == "" {
		cfg.AppName = "School Finance Office"
	}
	return &SMTPNotifier{
		cfg: cfg,
		tpl: template.Must(template.New("receipt").Parse(receiptTemplate)),
	}
}

func (s *SMTPNotifier) NotifyReceipt(ctx context.Context, r Receipt) error {
	if strings.TrimSpace(r.To) == "" {
		return errors.New("notify: receipt has no recipient")
	}
	var body bytes.Buffer
	if err := s.tpl.Execute(&body, receiptView{
		StudentName:   r.StudentName,
		ReceiptNumber: r.ReceiptNumber,
		Amount:        r.Amount.StringFixed(2),
		Currency:      r.Currency,
		Method:        r.Method,
		Date:          r.Date.Format("02 Jan 2006 15:04"),
		AppName:       s.cfg.AppName,
	}); err != nil {
		return err
	}
	return s.send(ctx, r.To, "Payment receipt "+r.ReceiptNumber, body.String())
}

func (s *SMTPNotifier) send(ctx context.Context, to, subject, text string) error {
	var msg bytes.Buffer
	write := func(format string, a ...any) { _, _ = msg.WriteString(fmt.Sprintf(format, a...)) }
	write("From: %s\r\n", s.cfg.From)
	write("To: %s\r\n", to)
	write("Subject: %s\r\n", subject)
	write("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	write("MIME-Version: 1.0\r\n")
	write("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	write("%s\r\n", strings.ReplaceAll(text, "\n", "\r\n"))

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Quit()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if s.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return err
		}
	}
	if err := c.Mail(s.cfg.From); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg.Bytes()); err != nil {
		return err
	}
	return w.Close()
}
