// Package mail renders campaign messages for every target and delivers
// them through the send queue.
package mail

import (
	"github.com/go-gomail/gomail"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail/send"
	log "github.com/sirupsen/logrus"

	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Dial attempts per worker connection
const dialTries = 3

var errNoTargets = errors.New("no valid targets to send to")

// Sender implements lifecycle.Sender for the configured message
type Sender struct {
	cfg   *config.AConfig
	conns send.Sender

	// Released once the session is over
	closer    io.Closer
	closeOnce sync.Once

	mu      sync.Mutex
	queue   send.Manager
	alive   bool
	stopped bool
	done    int
	total   int
}

// NewSender delivers through conns and closes closer (usually
// the transport that owns conns) when the session ends
func NewSender(cfg *config.AConfig, conns send.Sender, closer io.Closer) *Sender {
	return &Sender{cfg: cfg, conns: conns, closer: closer}
}

func (s *Sender) MissingFiles() []string {
	return missingFiles(s.cfg.AppFs, s.cfg.Mailer)
}

// Start loads the targets and starts the workers. Messages are
// rendered and queued on a separate goroutine.
func (s *Sender) Start(ctx context.Context, sink lifecycle.ProgressSink) error {
	m := s.cfg.Mailer
	comp, err := newComposer(s.cfg.AppFs, m)
	if err != nil {
		return err
	}
	targets, err := loadTargets(s.cfg.AppFs, m)
	if err != nil {
		return err
	} else if len(targets) == 0 {
		return errNoTargets
	}
	for _, t := range targets {
		if t.UID, err = makeUID(m.MessageUID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.done, s.total, s.stopped = 0, len(targets), false
	s.mu.Unlock()

	queue, err := send.NewInMemory(ctx, &send.Config{
		QueueID:  s.cfg.CampaignID,
		SendRate: s.cfg.SendRate,
		Workers:  s.cfg.Workers,
		OnSent:   func(msg *gomail.Message, err error) { s.delivered(sink, msg, err) },
	}, send.WithRetry(ctx, s.conns, dialTries))
	if err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	s.mu.Lock()
	s.queue, s.alive = queue, true
	s.mu.Unlock()

	sink.Notify(lifecycle.SentCount{Done: 0, Total: len(targets)})
	go s.run(ctx, queue, comp, targets, sink)
	return nil
}

func (s *Sender) run(ctx context.Context, queue send.Manager, comp *composer, targets []*Target, sink lifecycle.ProgressSink) {
	logger := log.WithFields(log.Fields{"component": "mail", "campaign": s.cfg.CampaignID})

	for _, t := range targets {
		msg, err := comp.compose(t)
		if err != nil {
			logger.WithError(err).WithField("to", t.Email).Error("Could not build message")
			s.delivered(sink, nil, err)
			continue
		}
		if err := queue.Enqueue(ctx, msg); err != nil {
			logger.WithError(err).Debug("Stopped queueing messages")
			break
		}
	}

	queue.Close()
	queue.Wait()
	s.Close()

	s.mu.Lock()
	s.alive = false
	done, total := s.done, s.total
	stopped := s.stopped && done < total
	s.mu.Unlock()

	logger.Infof("Delivered %d of %d messages", done, total)
	if stopped {
		sink.Notify(lifecycle.Stopped{})
	} else {
		sink.Notify(lifecycle.Finished{})
	}
}

// Every attempt counts towards progress, failed ones are reported
func (s *Sender) delivered(sink lifecycle.ProgressSink, msg *gomail.Message, err error) {
	s.mu.Lock()
	s.done++
	count := lifecycle.SentCount{Done: s.done, Total: s.total}
	s.mu.Unlock()

	if err != nil {
		to := "unknown recipient"
		if msg != nil {
			to = strings.Join(msg.GetHeader("To"), ", ")
		}
		sink.Notify(lifecycle.StatusText{Text: fmt.Sprintf("Failed to send message to %s: %v\n", to, err)})
	}
	sink.Notify(count)
}

// Stop interrupts a running session. Once every target has been
// attempted the session finishes normally instead.
func (s *Sender) Stop() {
	s.mu.Lock()
	q := s.queue
	if s.alive && s.done < s.total {
		s.stopped = true
	}
	s.mu.Unlock()
	if q != nil {
		q.Stop()
	}
}

func (s *Sender) Pause() {
	if q := s.currentQueue(); q != nil {
		q.Pause()
	}
}

func (s *Sender) Unpause() {
	if q := s.currentQueue(); q != nil {
		q.Unpause()
	}
}

func (s *Sender) IsAlive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// Close releases the transport; safe to call more than once
func (s *Sender) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

func (s *Sender) currentQueue() send.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue
}
