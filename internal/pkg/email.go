package pkg

import (
	"crypto/tls"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer sends html mail over SMTP. A Mailer without a host is disabled.
type Mailer struct {
	cfg SMTPConfig
}

func NewMailer(cfg SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Enabled() bool { return m != nil && m.cfg.Host != "" }

func (m *Mailer) Send(to, subject, htmlBody string) error {
	if !m.Enabled() {
		return nil
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	d := gomail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.Username, m.cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	return d.DialAndSend(msg)
}

func ReportResolvedHTML(username string, reportID uint64, status, notes string) string {
	body := fmt.Sprintf(`<p>Hi %s,</p><p>Your report <b>#%d</b> was reviewed and marked <b>%s</b>.</p>`,
		html.EscapeString(username), reportID, html.EscapeString(status))
	if notes != "" {
		body += fmt.Sprintf(`<p>Moderator notes: %s</p>`, html.EscapeString(notes))
	}
	return body + `<p>Thanks for helping keep the community safe.</p>`
}
