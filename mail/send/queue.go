package send

import (
	"github.com/go-gomail/gomail"

	"context"
	"errors"
)

var ErrQueueClosed = errors.New("queue is closed")

// Manager is the interface for delivery queues and their workers
type Manager interface {
	// Enqueue adds a message, blocking while the queue is full
	Enqueue(ctx context.Context, msg *gomail.Message) error

	// Wait blocks until the workers exit
	Wait() error

	// Close stops accepting messages; queued ones are still delivered
	Close() error

	// Pause holds workers before their next message until Unpause
	Pause()
	Unpause()

	// Stop drops queued messages and releases paused workers
	Stop()
}

// Sender creates per-worker connections
// Implemented by transport.Transport
type Sender interface {
	NewConn() (Conn, error)
}

// Conn delivers messages, see gomail.Send
type Conn = gomail.SendCloser
