package transport

import (
	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"

	"bytes"
	"fmt"
	"io"
	"sync"
)

// Summary of a message delivered in dry-run mode
type Summary struct {
	From        string
	To          []string
	Subject     string
	Attachments []string
}

// dryRunSendCloser parses messages instead of delivering them
type dryRunSendCloser struct {
	out io.Writer

	mu   sync.Mutex
	sent []Summary
}

func (s *dryRunSendCloser) Send(from string, to []string, msg io.WriterTo) error {
	var b bytes.Buffer
	if _, err := msg.WriteTo(&b); err != nil {
		return err
	}
	raw := b.Bytes()

	e, err := email.NewEmailFromReader(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("dry run: %w", err)
	}

	sum := Summary{From: from, To: to, Subject: e.Subject}
	for _, a := range e.Attachments {
		sum.Attachments = append(sum.Attachments, a.Filename)
	}

	log.WithFields(log.Fields{
		"from":        sum.From,
		"to":          sum.To,
		"subject":     sum.Subject,
		"attachments": len(sum.Attachments),
	}).Info("dry run delivery")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		fmt.Fprintf(s.out, "------> MAIL FROM: %s TO: %+v\n", from, to)
		s.out.Write(raw)
		fmt.Fprintln(s.out, "------> /MAIL")
	}
	s.sent = append(s.sent, sum)
	return nil
}

func (s *dryRunSendCloser) Close() error {
	return nil
}

func (s *dryRunSendCloser) Sent() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Summary(nil), s.sent...)
}
