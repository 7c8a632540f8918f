// Package lifecycle coordinates one campaign send: prechecks, connection
// negotiation, and the pause/stop/finish life of the sender.
package lifecycle

import (
	log "github.com/sirupsen/logrus"

	"fmt"
	"strings"
)

// Event is a progress message pushed to a ProgressSink
type Event interface {
	// Terminal events end a session
	Terminal() bool
}

// StatusText is free-form advisory status output
type StatusText struct {
	Text string
}

// SentCount reports delivery progress
type SentCount struct {
	Done  int
	Total int
}

// Finished is emitted when the sender delivered every message
type Finished struct{}

// Stopped is emitted when the sender acknowledged a stop request
type Stopped struct{}

// Aborted is emitted when a session ends before sending started
type Aborted struct {
	Reason string
}

func (StatusText) Terminal() bool { return false }
func (SentCount) Terminal() bool  { return false }
func (Finished) Terminal() bool   { return true }
func (Stopped) Terminal() bool    { return true }
func (Aborted) Terminal() bool    { return true }

// Fraction of messages sent, in [0, 1]
func (s SentCount) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Done) / float64(s.Total)
}

func (s SentCount) String() string {
	return fmt.Sprintf("%d/%d", s.Done, s.Total)
}

// ProgressSink receives progress events from a send session.
// StatusText and SentCount are advisory and may arrive out of order;
// Finished, Stopped and Aborted are authoritative.
type ProgressSink interface {
	Notify(Event)
}

// SinkFunc adapts a function to ProgressSink
type SinkFunc func(Event)

func (f SinkFunc) Notify(e Event) {
	f(e)
}

// MultiSink fans events out to every sink in order
type MultiSink []ProgressSink

func (m MultiSink) Notify(e Event) {
	for _, s := range m {
		if s != nil {
			s.Notify(e)
		}
	}
}

// LogSink writes events to a logrus entry
type LogSink struct {
	Entry *log.Entry
}

func (l LogSink) Notify(e Event) {
	entry := l.Entry
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}

	switch ev := e.(type) {
	case StatusText:
		entry.Info(strings.TrimRight(ev.Text, "\n"))
	case SentCount:
		entry.WithField("sent", ev.String()).Debug("message sent")
	case Finished:
		entry.Info("sending finished")
	case Stopped:
		entry.Info("sending stopped")
	case Aborted:
		entry.WithField("reason", ev.Reason).Warn("sending aborted")
	}
}

// Status text helper
func notifyf(s ProgressSink, format string, args ...any) {
	if s != nil {
		s.Notify(StatusText{Text: fmt.Sprintf(format, args...)})
	}
}
