package transport

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/gomail.v2"

	"RosterMail/internal/compose"
	"RosterMail/internal/models"
)

// SMTP delivers through a plain SMTP relay. It rebuilds the message with
// gomail from the payload's structured fields; the raw bytes are for
// transports that submit messages verbatim.
type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (s *SMTP) Method() models.SendMethod { return models.MethodSMTP }

func (s *SMTP) Send(ctx context.Context, p *compose.Payload) error {
	if err := validatePayload(p); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", p.To)
	if len(p.Cc) > 0 {
		m.SetHeader("Cc", p.Cc...)
	}
	m.SetHeader("Subject", p.Subject)
	m.SetBody("text/html", p.HTMLBody)

	for _, att := range p.Attachments {
		content := att.Content
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		}
		if att.MIMEType != "" {
			settings = append(settings, gomail.SetHeader(map[string][]string{
				"Content-Type": {att.MIMEType},
			}))
		}
		m.Attach(att.Name, settings...)
	}

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send error: %w", err)
	}
	return nil
}
