package mail

import (
	"github.com/go-gomail/gomail"
	"github.com/rykov/lure/config"
	"github.com/spf13/afero"

	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// composer builds one message per target from the message settings
type composer struct {
	fs      afero.Fs
	mailer  config.MailerConfig
	baseDir string
	subject *template.Template
	body    *template.Template
	now     func() time.Time
}

func newComposer(fs afero.Fs, m config.MailerConfig) (*composer, error) {
	raw, err := afero.ReadFile(fs, m.HTMLFile)
	if err != nil {
		return nil, fmt.Errorf("read message template: %w", err)
	}

	c := &composer{fs: fs, mailer: m, baseDir: filepath.Dir(m.HTMLFile), now: time.Now}
	if c.body, err = template.New("body").Parse(string(raw)); err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.HTMLFile, err)
	}
	if c.subject, err = template.New("subject").Parse(m.Subject); err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}
	return c, nil
}

func (c *composer) compose(t *Target) (*gomail.Message, error) {
	m := c.mailer
	rc, err := newRenderContext(m, t)
	if err != nil {
		return nil, err
	}

	var subject, body bytes.Buffer
	if err := c.subject.Execute(&subject, rc); err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	if err := c.body.Execute(&body, rc); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	html, images, err := prepareHTML(c.fs, c.baseDir, body.String())
	if err != nil {
		return nil, fmt.Errorf("prepare html: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.SourceEmail, m.SourceEmailAlias)
	if s := m.SourceEmailSMTP; s != "" && s != m.SourceEmail {
		// Envelope sender
		msg.SetHeader("Sender", s)
	}
	if m.ReplyToEmail != "" {
		msg.SetHeader("Reply-To", m.ReplyToEmail)
	}
	msg.SetHeader("Subject", strings.TrimSpace(subject.String()))
	if v := m.Importance; v != "" && v != "Normal" {
		msg.SetHeader("Importance", v)
	}
	if v := m.Sensitivity; v != "" && v != "Normal" {
		msg.SetHeader("Sensitivity", v)
	}
	c.setRecipients(msg, t)

	msg.SetBody("text/html", html)
	if m.MessageType == "calendar_invite" {
		ics, err := calendarInvite(m.CalendarInvite, m.SourceEmail, m.SourceEmailAlias, t, c.now())
		if err != nil {
			return nil, err
		}
		msg.AddAlternative("text/calendar; method=REQUEST", ics)
	}

	for _, img := range images {
		msg.Embed(img.Path, gomail.Rename(img.CID), gomail.SetCopyFunc(c.copyFile(img.Path)))
	}
	if p := m.AttachmentFile; p != "" {
		msg.Attach(p, gomail.SetCopyFunc(c.copyFile(p)))
	}
	return msg, nil
}

// The target goes into the configured field, other fields
// carry the configured recipients. Invites always address the
// target directly since it is the invite's attendee.
func (c *composer) setRecipients(msg *gomail.Message, t *Target) {
	m := c.mailer
	target := msg.FormatAddress(t.Email, t.FullName())

	var to, cc []string
	if m.RecipientEmailCC != "" {
		cc = append(cc, m.RecipientEmailCC)
	}

	field := m.TargetField
	if m.MessageType == "calendar_invite" {
		field = "to"
	}
	switch field {
	case "cc":
		to = []string{m.RecipientEmailTo}
		cc = append([]string{target}, cc...)
	case "bcc":
		to = []string{m.RecipientEmailTo}
		msg.SetHeader("Bcc", target)
	default:
		to = []string{target}
	}

	msg.SetHeader("To", to...)
	if len(cc) > 0 {
		msg.SetHeader("Cc", cc...)
	}
}

// Read message files through the configured filesystem
func (c *composer) copyFile(path string) func(io.Writer) error {
	return func(w io.Writer) error {
		f, err := c.fs.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}
}
