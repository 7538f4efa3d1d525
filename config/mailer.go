package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"

	mail "github.com/go-mail/mail/v2"
)

type smtpSettings struct {
	host          string
	port          int
	user          string
	pass          string
	from          string
	skipTLSVerify bool
}

// smtp settings are read on use so values loaded from .env after init are seen.
func loadSMTP() smtpSettings {
	port, _ := strconv.Atoi(os.Getenv("SMTP_PORT"))
	if port == 0 {
		port = 587
	}
	return smtpSettings{
		host:          os.Getenv("SMTP_HOST"),
		port:          port,
		user:          os.Getenv("SMTP_USER"),
		pass:          os.Getenv("SMTP_PASS"),
		from:          os.Getenv("SMTP_FROM"), // e.g. "Fraud Operations <no-reply@your.org>"
		skipTLSVerify: os.Getenv("SMTP_SKIP_TLS_VERIFY") == "1",
	}
}

// MailConfigured reports whether SMTP_HOST and SMTP_FROM are set.
func MailConfigured() bool {
	s := loadSMTP()
	return s.host != "" && s.from != ""
}

// EscalationRecipients returns ESCALATION_MAIL_TO split on commas.
func EscalationRecipients() []string {
	return EnvList("ESCALATION_MAIL_TO")
}

// SendMail delivers a plain-text message such as an escalation letter.
func SendMail(to []string, subject, body string) error {
	if len(to) == 0 {
		return nil
	}
	s := loadSMTP()
	if s.host == "" || s.from == "" {
		return fmt.Errorf("smtp not configured (SMTP_HOST/SMTP_FROM)")
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := mail.NewDialer(s.host, s.port, s.user, s.pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         s.host,
		InsecureSkipVerify: s.skipTLSVerify, // dev only
	}

	return d.DialAndSend(m)
}
