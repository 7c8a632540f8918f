package send

import (
	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"

	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// WithRetry dials with a constant backoff between attempts
func WithRetry(ctx context.Context, s Sender, tries uint) Sender {
	return &retrySender{ctx: ctx, sender: s, tries: tries}
}

func NewTestSender() *TestSender {
	return &TestSender{}
}

type retrySender struct {
	ctx    context.Context
	sender Sender
	tries  uint
}

func (r *retrySender) NewConn() (Conn, error) {
	return backoff.Retry(r.ctx, r.sender.NewConn,
		backoff.WithMaxTries(r.tries),
		backoff.WithBackOff(backoff.NewConstantBackOff(time.Second)),
		backoff.WithNotify(func(err error, _ time.Duration) {
			log.WithError(err).Warn("Retrying SMTP dial on error")
		}),
	)
}

// TestSender keeps every delivered message in memory
type TestSender struct {
	lock  sync.Mutex
	Mails [][]byte
	Rcpts [][]string
}

func (s *TestSender) NewConn() (Conn, error) {
	return s, nil
}

func (s *TestSender) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return errors.Join(errors.New("test sender"), err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.Mails = append(s.Mails, buf.Bytes())
	s.Rcpts = append(s.Rcpts, to)
	return nil
}

func (s *TestSender) Close() error {
	return nil
}

func (s *TestSender) Count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.Mails)
}
