package mail

import (
	"github.com/google/go-cmp/cmp"
	"github.com/rykov/lure/config"
	"github.com/rykov/lure/lifecycle"
	"github.com/rykov/lure/mail/send"
	"github.com/spf13/afero"

	"bytes"
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"sync"
	"testing"
	"time"
)

// eventSink records events and signals the terminal one
type eventSink struct {
	mu     sync.Mutex
	events []lifecycle.Event
	done   chan lifecycle.Event
}

func newEventSink() *eventSink {
	return &eventSink{done: make(chan lifecycle.Event, 1)}
}

func (s *eventSink) Notify(e lifecycle.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	if e.Terminal() {
		s.done <- e
	}
}

func (s *eventSink) wait(t *testing.T) lifecycle.Event {
	t.Helper()
	select {
	case e := <-s.done:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the sender to finish")
		return nil
	}
}

func (s *eventSink) lastCount() lifecycle.SentCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last lifecycle.SentCount
	for _, e := range s.events {
		if sc, ok := e.(lifecycle.SentCount); ok && sc.Done >= last.Done {
			last = sc
		}
	}
	return last
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

func newTestSenderConfig(t *testing.T, targets int) *config.AConfig {
	t.Helper()
	cfg := newTestConfig(t)
	cfg.CampaignID = "7"
	cfg.SendRate = 0
	cfg.Workers = 2
	writeMessageFiles(t, cfg.AppFs)

	var csv strings.Builder
	csv.WriteString("first_name,last_name,email_address\n")
	for i := 0; i < targets; i++ {
		fmt.Fprintf(&csv, "User,%d,user%d@example.com\n", i, i)
	}
	afero.WriteFile(cfg.AppFs, "/msg/targets.csv", []byte(csv.String()), 0644)

	cfg.Mailer = testMailer()
	cfg.Mailer.Subject = "{{ .UID }}"
	cfg.Mailer.TargetType = "file"
	cfg.Mailer.TargetFile = "/msg/targets.csv"
	return cfg
}

func TestSenderDeliversEveryTarget(t *testing.T) {
	cfg := newTestSenderConfig(t, 5)
	conns := send.NewTestSender()
	closer := &closeCounter{}
	s := NewSender(cfg, conns, closer)

	sink := newEventSink()
	if err := s.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %s", err)
	}

	if e := sink.wait(t); e != (lifecycle.Finished{}) {
		t.Fatalf("Expected Finished, got %#v", e)
	}
	if diff := cmp.Diff(lifecycle.SentCount{Done: 5, Total: 5}, sink.lastCount()); diff != "" {
		t.Errorf("Count mismatch (-want +got):\n%s", diff)
	}
	if n := conns.Count(); n != 5 {
		t.Errorf("Expected 5 messages, got %d", n)
	}
	if s.IsAlive() {
		t.Error("Sender should not be alive after finishing")
	}
	if closer.n != 1 {
		t.Errorf("Transport should be closed once, got %d", closer.n)
	}

	// Every message carries its own UID
	uids := map[string]bool{}
	for _, raw := range conns.Mails {
		msg, err := netmail.ReadMessage(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("ReadMessage: %s", err)
		}
		uids[msg.Header.Get("Subject")] = true
	}
	if len(uids) != 5 {
		t.Errorf("Expected 5 distinct UIDs, got %v", uids)
	}
}

func TestSenderStop(t *testing.T) {
	cfg := newTestSenderConfig(t, 20)
	cfg.SendRate = 10
	conns := send.NewTestSender()
	s := NewSender(cfg, conns, nil)

	sink := newEventSink()
	if err := s.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %s", err)
	}
	s.Pause()
	s.Pause()
	if !s.IsAlive() {
		t.Error("Paused sender should be alive")
	}
	s.Stop()

	if e := sink.wait(t); e != (lifecycle.Stopped{}) {
		t.Fatalf("Expected Stopped, got %#v", e)
	}
	if n := conns.Count(); n >= 20 {
		t.Errorf("Stopped sender delivered all %d messages", n)
	}
}

// Blocks the end of the session until released
type gateCloser struct {
	closing chan struct{}
	release chan struct{}
}

func (c *gateCloser) Close() error {
	close(c.closing)
	<-c.release
	return nil
}

func TestSenderStopAfterDrain(t *testing.T) {
	cfg := newTestSenderConfig(t, 3)
	conns := send.NewTestSender()
	closer := &gateCloser{closing: make(chan struct{}), release: make(chan struct{})}
	s := NewSender(cfg, conns, closer)

	sink := newEventSink()
	if err := s.Start(context.Background(), sink); err != nil {
		t.Fatalf("Start: %s", err)
	}

	// Every message is out and the session is wrapping up
	select {
	case <-closer.closing:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the queue to drain")
	}
	if !s.IsAlive() {
		t.Fatal("Sender should be alive until the session ends")
	}
	s.Stop()
	close(closer.release)

	if e := sink.wait(t); e != (lifecycle.Finished{}) {
		t.Fatalf("Expected Finished after a late stop, got %#v", e)
	}
	if n := conns.Count(); n != 3 {
		t.Errorf("Expected 3 messages, got %d", n)
	}

	// Stopping a finished sender changes nothing
	s.Stop()
	if s.IsAlive() {
		t.Error("Sender should not be alive after finishing")
	}
}

func TestSenderStartErrors(t *testing.T) {
	cfg := newTestSenderConfig(t, 0)
	s := NewSender(cfg, send.NewTestSender(), nil)
	if err := s.Start(context.Background(), newEventSink()); !errors.Is(err, errNoTargets) {
		t.Errorf("Expected errNoTargets, got %v", err)
	}

	cfg.Mailer.HTMLFile = "/msg/missing.html"
	if err := s.Start(context.Background(), newEventSink()); err == nil {
		t.Error("Missing template should fail")
	}
	if s.IsAlive() {
		t.Error("Failed sender should not be alive")
	}
}

func TestSenderMissingFiles(t *testing.T) {
	cfg := newTestSenderConfig(t, 1)
	s := NewSender(cfg, send.NewTestSender(), nil)
	if m := s.MissingFiles(); len(m) != 0 {
		t.Errorf("Expected no missing files, got %v", m)
	}

	cfg.AppFs.Remove("/msg/logo.png")
	cfg.Mailer.TargetFile = "/msg/gone.csv"
	expect := []string{"/msg/gone.csv", "/msg/logo.png"}
	if diff := cmp.Diff(expect, s.MissingFiles()); diff != "" {
		t.Errorf("Missing files mismatch (-want +got):\n%s", diff)
	}

	// Single target mode never needs a target file
	cfg.Mailer.TargetType = "single"
	if diff := cmp.Diff([]string{"/msg/logo.png"}, s.MissingFiles()); diff != "" {
		t.Errorf("Missing files mismatch (-want +got):\n%s", diff)
	}
}
