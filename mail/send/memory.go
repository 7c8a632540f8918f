package send

import (
	"github.com/go-gomail/gomail"
	log "github.com/sirupsen/logrus"

	"context"
	"io"
	"strings"
	"sync"
	"time"
)

// memoryQueue is the built-in channel-based queue implementation
type memoryQueue struct {
	tasks  chan *gomail.Message
	waiter *sync.WaitGroup
	sender Sender
	gate   gate
	onSent func(*gomail.Message, error)

	// Canceled by Stop or the parent context
	context context.Context
	cancel  context.CancelFunc

	stop  bool
	stopL sync.Mutex

	log *log.Entry

	// Rate limiting
	throttle time.Duration
	workers  int
}

// Delivery configuration
type Config struct {
	QueueID  string
	SendRate float32
	Workers  int

	// Called after every delivery attempt
	OnSent func(msg *gomail.Message, err error)
}

// NewInMemory creates a new in-memory channel-based queue
func NewInMemory(ctx context.Context, cfg *Config, sender Sender) (Manager, error) {
	// Rate configuration
	throttle := time.Duration(0)
	if cfg.SendRate > 0 {
		throttle = time.Duration(1000/cfg.SendRate) * time.Millisecond
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	logger := log.WithFields(log.Fields{"component": "queue", "queue": cfg.QueueID})
	logger.Infof("Sending an email every %s via %d workers", throttle, workers)

	qctx, cancel := context.WithCancel(ctx)
	queue := &memoryQueue{
		tasks:    make(chan *gomail.Message, 10),
		waiter:   &sync.WaitGroup{},
		context:  qctx,
		cancel:   cancel,
		sender:   sender,
		onSent:   cfg.OnSent,
		log:      logger,
		throttle: throttle,
		workers:  workers,
	}

	// Dial every worker before any of them starts
	conns := make([]Conn, 0, workers)
	for i := 0; i < workers; i++ {
		conn, err := sender.NewConn()
		if err != nil {
			for _, c := range conns {
				c.Close()
			}
			cancel()
			return nil, err
		}
		conns = append(conns, conn)
	}
	for i, conn := range conns {
		queue.startWorker(i, conn)
	}

	return queue, nil
}

// Enqueue adds an email message to the queue
func (d *memoryQueue) Enqueue(ctx context.Context, msg *gomail.Message) error {
	if d.closed() {
		return ErrQueueClosed
	}

	// Apply rate limiting
	if d.throttle > 0 {
		select {
		case <-time.After(d.throttle):
		case <-d.context.Done():
			return ErrQueueClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	d.stopL.Lock()
	defer d.stopL.Unlock()
	if d.stop {
		return ErrQueueClosed
	}

	select {
	case d.tasks <- msg:
		return nil
	case <-d.context.Done():
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until all workers exit
func (d *memoryQueue) Wait() error {
	d.waiter.Wait()
	return nil
}

// Close gracefully shuts down the queue
func (d *memoryQueue) Close() error {
	d.stopL.Lock()
	defer d.stopL.Unlock()

	if !d.stop {
		d.stop = true
		close(d.tasks)
	}
	return nil
}

func (d *memoryQueue) Pause() {
	d.gate.Close()
}

func (d *memoryQueue) Unpause() {
	d.gate.Open()
}

// Stop cancels delivery of everything still queued
func (d *memoryQueue) Stop() {
	d.cancel()
	d.gate.Open()
}

func (d *memoryQueue) closed() bool {
	d.stopL.Lock()
	defer d.stopL.Unlock()
	return d.stop || d.context.Err() != nil
}

// startWorker spawns a worker goroutine to process tasks
func (d *memoryQueue) startWorker(id int, conn Conn) {
	logger := d.log.WithField("worker", id)
	logger.Debug("Starting worker...")
	d.waiter.Add(1)

	go func() {
		defer d.waiter.Done()
		defer logger.Debug("Stopping worker...")
		defer func() { conn.Close() }()

		for {
			select {
			case <-d.context.Done():
				logger.Debug("Worker stopped on cancellation")
				return
			case msg, more := <-d.tasks:
				if !more {
					return
				}
				if err := d.gate.Wait(d.context); err != nil {
					return
				}
				if d.context.Err() != nil {
					return
				}

				to := strings.Join(msg.GetHeader("To"), ", ")
				logger.WithField("to", to).Debug("Sending email")

				err := gomail.Send(conn, msg)
				if err != nil {
					logger.WithError(err).WithField("to", to).Warn("Could not send email")
				}
				if d.onSent != nil {
					d.onSent(msg, err)
				}

				// Replace errored connection
				if err != nil {
					conn.Close()
					next, err := d.sender.NewConn()
					if err != nil {
						conn = nopConn{}
						logger.WithError(err).Error("Failed to recreate sender after error")
						return
					}
					conn = next
				}
			}
		}
	}()
}

// Placeholder for a connection that was already closed
type nopConn struct{}

func (nopConn) Send(string, []string, io.WriterTo) error { return ErrQueueClosed }
func (nopConn) Close() error                             { return nil }

// gate blocks workers while closed
type gate struct {
	mu sync.Mutex
	ch chan struct{}
}

func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch == nil {
		g.ch = make(chan struct{})
	}
}

func (g *gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ch != nil {
		close(g.ch)
		g.ch = nil
	}
}

func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()
	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
