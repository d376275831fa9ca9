package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/yrest-dev/yrest/core/logger"
)

// Attachment is a file carried by a mail.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mail is one outgoing message. Text and HTML are alternative bodies;
// either may be empty.
type Mail struct {
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment
}

// Mailer sends notification mails over SMTP. With DEBUG_NOTIFICATIONS
// set, mails are logged instead of sent.
type Mailer struct {
	host   string
	port   int
	sender string
	auth   smtp.Auth
	debug  bool
}

type mailArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func newMailer(c Configuration) *Mailer {
	m := &Mailer{
		host:   c.MailServer,
		port:   c.MailPort,
		sender: c.MailSender,
		debug:  c.DebugNotifications,
	}
	if c.MailArgs != "" {
		var args mailArgs
		if err := json.Unmarshal([]byte(c.MailArgs), &args); err != nil {
			logger.Default().Warnln("unusable MAIL_ARGS:", err)
		} else if args.Username != "" {
			m.auth = smtp.PlainAuth("", args.Username, args.Password, c.MailServer)
		}
	}
	return m
}

// Send delivers the mail, or logs it in debug mode.
func (m *Mailer) Send(ctx context.Context, mail *Mail) error {
	if m.debug {
		log := logger.FromContext(ctx)
		log.Infoln("notification mail to", strings.Join(mail.To, ", "))
		log.Infoln("subject:", mail.Subject)
		if mail.Text != "" {
			log.Infoln(mail.Text)
		}
		return nil
	}
	if m.host == "" {
		return fmt.Errorf("no MAIL_SERVER configured")
	}
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	return smtp.SendMail(addr, m.auth, m.sender, mail.To, m.encode(mail))
}

// encode renders the message: a multipart/alternative body for the
// text and html variants, wrapped in multipart/mixed when attachments
// are present.
func (m *Mailer) encode(mail *Mail) []byte {
	var b strings.Builder
	const mixed = "yrest-mixed"
	const alternative = "yrest-alternative"

	fmt.Fprintf(&b, "From: %s\r\n", m.sender)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(mail.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", mail.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(mail.Attachments) > 0 {
		fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mixed)
		fmt.Fprintf(&b, "--%s\r\n", mixed)
	}

	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", alternative)
	if mail.Text != "" {
		fmt.Fprintf(&b, "--%s\r\n", alternative)
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(mail.Text)
		b.WriteString("\r\n")
	}
	if mail.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", alternative)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(mail.HTML)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", alternative)

	if len(mail.Attachments) > 0 {
		for _, a := range mail.Attachments {
			contentType := a.ContentType
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			fmt.Fprintf(&b, "--%s\r\n", mixed)
			fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
			b.WriteString("Content-Transfer-Encoding: base64\r\n")
			fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", a.Filename)
			encoded := base64.StdEncoding.EncodeToString(a.Data)
			for len(encoded) > 76 {
				b.WriteString(encoded[:76])
				b.WriteString("\r\n")
				encoded = encoded[76:]
			}
			b.WriteString(encoded)
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "--%s--\r\n", mixed)
	}
	return []byte(b.String())
}
