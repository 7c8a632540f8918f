package server

import (
	"github.com/rykov/lure/lifecycle"

	"sync"
)

// Events kept for polling clients
const eventLogSize = 500

// EventLog is a ProgressSink keeping the latest events in order,
// numbered so clients can poll for what they have not seen yet
type EventLog struct {
	mu     sync.Mutex
	size   int
	seq    int32
	events []loggedEvent
}

type loggedEvent struct {
	seq   int32
	event lifecycle.Event
}

func NewEventLog(size int) *EventLog {
	return &EventLog{size: size}
}

func (l *EventLog) Notify(e lifecycle.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	l.events = append(l.events, loggedEvent{seq: l.seq, event: e})
	if over := len(l.events) - l.size; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
}

// After lists the kept events numbered above seq
func (l *EventLog) After(seq int32) []loggedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []loggedEvent
	for _, e := range l.events {
		if e.seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// ===== Event TYPE ======

type sendEvent struct {
	loggedEvent
}

func (e sendEvent) Seq() int32 {
	return e.seq
}

func (e sendEvent) Kind() string {
	switch e.event.(type) {
	case lifecycle.StatusText:
		return "status"
	case lifecycle.SentCount:
		return "sent"
	case lifecycle.Finished:
		return "finished"
	case lifecycle.Stopped:
		return "stopped"
	case lifecycle.Aborted:
		return "aborted"
	}
	return "unknown"
}

func (e sendEvent) Text() *string {
	var s string
	switch ev := e.event.(type) {
	case lifecycle.StatusText:
		s = ev.Text
	case lifecycle.Aborted:
		s = ev.Reason
	default:
		return nil
	}
	return &s
}

func (e sendEvent) Done() *int32 {
	if sc, ok := e.event.(lifecycle.SentCount); ok {
		n := int32(sc.Done)
		return &n
	}
	return nil
}

func (e sendEvent) Total() *int32 {
	if sc, ok := e.event.(lifecycle.SentCount); ok {
		n := int32(sc.Total)
		return &n
	}
	return nil
}
