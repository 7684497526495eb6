package notify

import (
	"campus/internal/content"

	"gopkg.in/gomail.v2"
)

// EmailSender delivers a notification body to one address.
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// SMTPSender sends notification email over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}
}

// SendEmail renders the body as sanitized HTML and delivers it. The
// body is markdown; whatever survives sanitization is what the
// recipient sees.
func (s *SMTPSender) SendEmail(to, subject, body string) error {
	html, err := content.RenderHTML(body)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	return s.dialer.DialAndSend(m)
}
