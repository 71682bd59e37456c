package infra

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/smtp"

	"devisbtp/internal/config"

	"github.com/jordan-wright/email"
)

// ErrSMTPNonConfigure is returned when SMTP_HOST is empty; the email worker
// treats it like any other send failure.
var ErrSMTPNonConfigure = errors.New("mailer: SMTP_HOST non configuré")

const smtpsPort = 465

// Mailer sends situation PDFs to chantier clients.
type Mailer struct {
	host     string
	port     int
	from     string
	user     string
	password string
}

func NewMailer(cfg *config.Config) *Mailer {
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUser
	}
	if cfg.NomEntreprise != "" && from != "" {
		from = fmt.Sprintf("%s <%s>", cfg.NomEntreprise, from)
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     from,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
	}
}

// SendSituation mails body with the situation PDF attached. Port 465 uses
// implicit TLS; any other port lets the server offer STARTTLS.
func (m *Mailer) SendSituation(to, subject, body, pdfPath string) error {
	if m.host == "" {
		return ErrSMTPNonConfigure
	}
	e := email.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	if pdfPath != "" {
		if _, err := e.AttachFile(pdfPath); err != nil {
			return fmt.Errorf("mailer: pièce jointe PDF: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.password, m.host)
	}
	if m.port == smtpsPort {
		return e.SendWithTLS(addr, auth, &tls.Config{ServerName: m.host})
	}
	return e.Send(addr, auth)
}
